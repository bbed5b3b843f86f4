package features

import (
	"sync/atomic"

	"github.com/life2you_mini/poolcore/internal/errs"
	"github.com/life2you_mini/poolcore/internal/model"
)

// DefaultVocabularyVersion 内置词表版本
const DefaultVocabularyVersion = "2024.1"

// Vocabulary 类别特征的固定词表，每个列表编码时额外带一个 unknown 槽位
type Vocabulary struct {
	Version   string   `json:"version" mapstructure:"version"`
	PoolKinds []string `json:"pool_kinds" mapstructure:"pool_kinds"`
	Platforms []string `json:"platforms" mapstructure:"platforms"`
	Chains    []string `json:"chains" mapstructure:"chains"`
}

// DefaultVocabulary 内置词表
func DefaultVocabulary() *Vocabulary {
	kinds := make([]string, len(model.PoolKinds))
	for i, k := range model.PoolKinds {
		kinds[i] = string(k)
	}
	return &Vocabulary{
		Version:   DefaultVocabularyVersion,
		PoolKinds: kinds,
		Platforms: []string{
			"ref-finance", "uniswap", "curve", "balancer", "aave", "compound",
			"trisolaris", "pancakeswap", "sushiswap", "orca", "raydium",
		},
		Chains: []string{
			"near", "aurora", "bsc", "polygon", "avalanche", "solana", "arbitrum", "ethereum",
		},
	}
}

// Validate 检查词表；严格模式下任何列表为空或缺少版本号都视为配置错误
func (v *Vocabulary) Validate(strict bool) error {
	if v == nil {
		return errs.New(errs.Misconfiguration, "features.vocabulary", "词表为空")
	}
	if !strict {
		return nil
	}
	if v.Version == "" {
		return errs.New(errs.Misconfiguration, "features.vocabulary", "严格模式下词表版本不能为空")
	}
	if len(v.PoolKinds) == 0 || len(v.Platforms) == 0 || len(v.Chains) == 0 {
		return errs.New(errs.Misconfiguration, "features.vocabulary", "严格模式下词表不能为空: version=%s", v.Version)
	}
	return nil
}

// Registry 读多写少的词表注册表，版本升级时整体原子替换
type Registry struct {
	current atomic.Pointer[Vocabulary]
	strict  bool
}

// NewRegistry 创建词表注册表
func NewRegistry(v *Vocabulary, strict bool) (*Registry, error) {
	if v == nil {
		v = DefaultVocabulary()
	}
	if err := v.Validate(strict); err != nil {
		return nil, err
	}
	r := &Registry{strict: strict}
	r.current.Store(v.clone())
	return r, nil
}

// Current 返回当前词表快照，调用方不得修改
func (r *Registry) Current() *Vocabulary {
	return r.current.Load()
}

// Replace 原子替换词表
func (r *Registry) Replace(v *Vocabulary) error {
	if err := v.Validate(r.strict); err != nil {
		return err
	}
	r.current.Store(v.clone())
	return nil
}

func (v *Vocabulary) clone() *Vocabulary {
	return &Vocabulary{
		Version:   v.Version,
		PoolKinds: append([]string(nil), v.PoolKinds...),
		Platforms: append([]string(nil), v.Platforms...),
		Chains:    append([]string(nil), v.Chains...),
	}
}
