package optimizer

import (
	"sort"

	"github.com/life2you_mini/poolcore/internal/model"
)

type imbalance struct {
	pool   string
	amount int64
}

// RebalanceMoves 把超配池子的多余权重转移到低配池子，均按数额从大到小匹配
// 偏离未达到阈值时不调仓
func RebalanceMoves(current, target map[string]int64, driftThresholdBps int64) []model.RebalanceMove {
	if len(target) == 0 || PortfolioDrift(current, target) < driftThresholdBps {
		return nil
	}

	var excess, deficit []imbalance
	for _, pool := range unionKeys(current, target) {
		d := current[pool] - target[pool]
		switch {
		case d > 0:
			excess = append(excess, imbalance{pool: pool, amount: d})
		case d < 0:
			deficit = append(deficit, imbalance{pool: pool, amount: -d})
		}
	}
	sortImbalances(excess)
	sortImbalances(deficit)

	var moves []model.RebalanceMove
	i, j := 0, 0
	for i < len(excess) && j < len(deficit) {
		amount := minInt64(excess[i].amount, deficit[j].amount)
		moves = append(moves, model.RebalanceMove{
			From:      excess[i].pool,
			To:        deficit[j].pool,
			AmountBps: amount,
		})
		excess[i].amount -= amount
		deficit[j].amount -= amount
		if excess[i].amount == 0 {
			i++
		}
		if deficit[j].amount == 0 {
			j++
		}
	}
	return moves
}

func sortImbalances(items []imbalance) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].amount != items[b].amount {
			return items[a].amount > items[b].amount
		}
		return items[a].pool < items[b].pool
	})
}
