package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "reconciliation_service", cfg.Database.Database)

	// Неисполненный оплаченный заказ возвращается через 14 дней
	assert.Equal(t, 336, cfg.Jobs.OrderExpiryHours)
	assert.Equal(t, 14*24*time.Hour, cfg.Jobs.OrderExpiry())
	assert.Equal(t, 48*time.Hour, cfg.Jobs.OrphanLookback())
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "svc",
		Password: "secret",
		Database: "payments",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=svc password=secret dbname=payments sslmode=disable", db.GetDSN())
}
