package db

import (
	"testing"
	"time"
)

func TestNewRedisClientAppliesDefaults(t *testing.T) {
	client, err := NewRedisClient(RedisConfig{Host: "localhost", Port: 6379})
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer client.Close()

	if client.config.PoolSize != 10 {
		t.Errorf("expected default pool size 10, got %d", client.config.PoolSize)
	}
	if client.config.MinIdleConns != 5 {
		t.Errorf("expected default min idle conns 5, got %d", client.config.MinIdleConns)
	}
	if client.config.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", client.config.MaxRetries)
	}
	if client.config.DialTimeout != 5*time.Second {
		t.Errorf("expected default dial timeout 5s, got %v", client.config.DialTimeout)
	}
	if client.GetClient() == nil {
		t.Error("expected non-nil underlying client")
	}
}

func TestNewRedisClientKeepsCustomConfig(t *testing.T) {
	cfg := RedisConfig{
		Host:         "redis.example.com",
		Port:         6380,
		Password:     "secret",
		DB:           1,
		PoolSize:     20,
		MinIdleConns: 10,
		MaxRetries:   5,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	client, err := NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer client.Close()

	if client.config != cfg {
		t.Errorf("expected config preserved, got %+v", client.config)
	}
	if client.Addr() != "redis.example.com:6380" {
		t.Errorf("unexpected addr: %s", client.Addr())
	}
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()

	if cfg.Host != "localhost" || cfg.Port != 6379 {
		t.Errorf("unexpected default address: %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.DB != 0 {
		t.Errorf("expected default DB 0, got %d", cfg.DB)
	}
}
