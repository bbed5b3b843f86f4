package redis

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions Redis客户端配置选项
type ClientOptions struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr 拼接 host:port，未配置时使用本地默认端口
func (o ClientOptions) Addr() string {
	host, port := o.Host, o.Port
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}
	return net.JoinHostPort(host, port)
}

// NewRedisClient 创建新的Redis客户端并测试连接
func NewRedisClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// releaseScript 只有持有者才能删除锁
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// CreateLock 创建一个分布式锁
func CreateLock(ctx context.Context, client *redis.Client, key string, value string, ttl time.Duration) (bool, error) {
	return client.SetNX(ctx, key, value, ttl).Result()
}

// ReleaseLock 释放一个分布式锁
func ReleaseLock(ctx context.Context, client *redis.Client, key string, value string) (bool, error) {
	result, err := releaseScript.Run(ctx, client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
