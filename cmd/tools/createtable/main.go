package main

import (
	"log"
	"os"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "esim:esim@tcp(localhost:3306)/esim_payments?parseTime=true&multiStatements=true&loc=Local"
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get DB: %v", err)
	}

	sql := `
	CREATE TABLE IF NOT EXISTS currencies (
	  id CHAR(36) NOT NULL,
	  code CHAR(3) NOT NULL,
	  symbol VARCHAR(8) NOT NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_currencies_code (code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS customers (
	  id CHAR(36) NOT NULL,
	  public_id VARCHAR(40) NOT NULL,
	  email VARCHAR(255) NOT NULL,
	  company VARCHAR(255) NULL,
	  is_b2b TINYINT(1) NOT NULL DEFAULT 0,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_customers_public_id (public_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS orders (
	  id CHAR(36) NOT NULL,
	  public_id VARCHAR(40) NOT NULL,
	  customer_id CHAR(36) NULL,
	  status VARCHAR(32) NOT NULL,
	  total_amount DECIMAL(12,2) NOT NULL,
	  currency CHAR(3) NOT NULL,
	  description VARCHAR(255) NOT NULL,
	  retry_count INT NOT NULL DEFAULT 0,
	  failure_reason VARCHAR(255) NULL,
	  failure_code VARCHAR(64) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  paid_at DATETIME(3) NULL,
	  completed_at DATETIME(3) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_orders_public_id (public_id),
	  KEY ix_orders_customer_id (customer_id),
	  CONSTRAINT fk_orders_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS payments (
	  id CHAR(36) NOT NULL,
	  public_id VARCHAR(44) NOT NULL,
	  order_id CHAR(36) NULL,
	  customer_id CHAR(36) NULL,
	  provider VARCHAR(32) NOT NULL,
	  type VARCHAR(16) NOT NULL,
	  status VARCHAR(16) NOT NULL,
	  amount DECIMAL(12,2) NOT NULL,
	  currency CHAR(3) NOT NULL,
	  provider_ref VARCHAR(128) NULL,
	  checkout_url VARCHAR(1024) NULL,
	  metadata JSON NULL,
	  idempotency_key VARCHAR(64) NOT NULL,
	  error_message VARCHAR(255) NULL,
	  error_code VARCHAR(32) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  paid_at DATETIME(3) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_payments_public_id (public_id),
	  KEY ix_payments_order_id (order_id),
	  KEY ix_payments_customer_id (customer_id),
	  KEY ix_payments_provider_ref (provider_ref),
	  KEY ix_payments_idem (idempotency_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS provider_events (
	  id CHAR(36) NOT NULL,
	  provider VARCHAR(32) NOT NULL,
	  event_id VARCHAR(128) NOT NULL,
	  event_type VARCHAR(64) NOT NULL,
	  payload_json JSON NOT NULL,
	  archive_key VARCHAR(255) NULL,
	  received_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  processed_at DATETIME(3) NULL,
	  process_error VARCHAR(255) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_provider_events_provider_event (provider, event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS refunds (
	  id CHAR(36) NOT NULL,
	  payment_id CHAR(36) NOT NULL,
	  order_id CHAR(36) NULL,
	  provider VARCHAR(32) NOT NULL,
	  provider_ref VARCHAR(128) NULL,
	  status VARCHAR(16) NOT NULL,
	  amount DECIMAL(12,2) NOT NULL,
	  currency CHAR(3) NOT NULL,
	  idempotency_key VARCHAR(64) NOT NULL,
	  actor_id VARCHAR(64) NOT NULL,
	  reason VARCHAR(255) NULL,
	  error_message VARCHAR(255) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_refunds_payment_idem (payment_id, idempotency_key),
	  KEY ix_refunds_payment_id (payment_id),
	  CONSTRAINT fk_refunds_payment FOREIGN KEY (payment_id) REFERENCES payments(id) ON DELETE RESTRICT
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS customer_balances (
	  customer_id CHAR(36) NOT NULL,
	  currency CHAR(3) NOT NULL,
	  balance DECIMAL(12,2) NOT NULL DEFAULT 0,
	  reserved DECIMAL(12,2) NOT NULL DEFAULT 0,
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (customer_id),
	  CONSTRAINT fk_customer_balances_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS balance_transactions (
	  id CHAR(36) NOT NULL,
	  customer_id CHAR(36) NOT NULL,
	  type VARCHAR(16) NOT NULL,
	  amount DECIMAL(12,2) NOT NULL,
	  currency CHAR(3) NOT NULL,
	  balance_before DECIMAL(12,2) NOT NULL,
	  balance_after DECIMAL(12,2) NOT NULL,
	  order_id CHAR(36) NULL,
	  payment_id CHAR(36) NULL,
	  description VARCHAR(255) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_balance_tx_customer_created (customer_id, created_at),
	  KEY ix_balance_tx_order_id (order_id),
	  KEY ix_balance_tx_payment_id (payment_id),
	  CONSTRAINT fk_balance_tx_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := sqlDB.Exec(sql); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	log.Println("✓ payment tables created successfully")
}
