package main

import (
	"flag"
	"fmt"
	"log"

	drivermysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/config"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS produtos (
  id CHAR(36) NOT NULL,
  nome VARCHAR(255) NOT NULL,
  descricao TEXT NULL,
  preco BIGINT NOT NULL,
  ativo TINYINT(1) NOT NULL DEFAULT 1,
  criado_em DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
  PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS pedidos (
  id CHAR(36) NOT NULL,
  produto_id CHAR(36) NOT NULL,
  nome VARCHAR(255) NOT NULL,
  email VARCHAR(255) NOT NULL,
  telefone VARCHAR(32) NULL,
  cpf VARCHAR(14) NOT NULL,
  valor BIGINT NOT NULL,
  forma_pagamento VARCHAR(16) NOT NULL,
  status VARCHAR(16) NOT NULL,
  criado_em DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
  PRIMARY KEY (id),
  KEY ix_pedidos_produto_id (produto_id),
  KEY ix_pedidos_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS order_events (
  id CHAR(36) NOT NULL,
  order_id CHAR(36) NOT NULL,
  actor VARCHAR(64) NOT NULL,
  action VARCHAR(32) NOT NULL,
  from_status VARCHAR(16) NOT NULL,
  to_status VARCHAR(16) NOT NULL,
  note VARCHAR(255) NULL,
  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
  PRIMARY KEY (id),
  KEY ix_order_events_order_id (order_id),
  CONSTRAINT fk_order_events_order FOREIGN KEY (order_id) REFERENCES pedidos(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS payments (
  id CHAR(36) NOT NULL,
  order_id CHAR(36) NOT NULL,
  active TINYINT(1) NOT NULL,
  provider VARCHAR(64) NOT NULL,
  provider_ref VARCHAR(128) NOT NULL,
  customer_ref VARCHAR(128) NOT NULL,
  billing_type VARCHAR(16) NOT NULL,
  provider_status VARCHAR(32) NOT NULL,
  amount_cents BIGINT NOT NULL,
  due_date VARCHAR(10) NULL,
  pix_expires_at DATETIME(3) NULL,
  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
  PRIMARY KEY (id),
  UNIQUE KEY ux_payments_provider_ref (provider, provider_ref),
  KEY ix_payments_order_active (order_id, active),
  CONSTRAINT fk_payments_order FOREIGN KEY (order_id) REFERENCES pedidos(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS provider_events (
  id CHAR(36) NOT NULL,
  provider VARCHAR(64) NOT NULL,
  event_id VARCHAR(128) NOT NULL,
  event_type VARCHAR(64) NOT NULL,
  payment_ref VARCHAR(128) NOT NULL,
  payload_json JSON NOT NULL,
  received_at DATETIME(3) NOT NULL,
  processed_at DATETIME(3) NULL,
  process_error VARCHAR(255) NULL,
  PRIMARY KEY (id),
  UNIQUE KEY ux_provider_events_provider_event (provider, event_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS gateway_settings (
  id INT UNSIGNED NOT NULL AUTO_INCREMENT,
  integration_enabled TINYINT(1) NOT NULL DEFAULT 0,
  pix_enabled TINYINT(1) NOT NULL DEFAULT 0,
  card_enabled TINYINT(1) NOT NULL DEFAULT 0,
  sandbox TINYINT(1) NOT NULL DEFAULT 1,
  api_key_production VARCHAR(255) NULL,
  api_key_sandbox VARCHAR(255) NULL,
  updated_at DATETIME(3) NULL,
  PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`

// mysqlSeed inserts the single, disabled settings row when the table is empty.
const mysqlSeed = `
INSERT INTO gateway_settings (integration_enabled, pix_enabled, card_enabled, sandbox, updated_at)
SELECT 0, 0, 0, 1, CURRENT_TIMESTAMP(3) FROM DUAL
WHERE NOT EXISTS (SELECT 1 FROM gateway_settings);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS produtos (
  id CHAR(36) NOT NULL PRIMARY KEY,
  nome VARCHAR(255) NOT NULL,
  descricao TEXT NULL,
  preco BIGINT NOT NULL,
  ativo BOOLEAN NOT NULL DEFAULT TRUE,
  criado_em TIMESTAMPTZ(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);

CREATE TABLE IF NOT EXISTS pedidos (
  id CHAR(36) NOT NULL PRIMARY KEY,
  produto_id CHAR(36) NOT NULL,
  nome VARCHAR(255) NOT NULL,
  email VARCHAR(255) NOT NULL,
  telefone VARCHAR(32) NULL,
  cpf VARCHAR(14) NOT NULL,
  valor BIGINT NOT NULL,
  forma_pagamento VARCHAR(16) NOT NULL,
  status VARCHAR(16) NOT NULL,
  criado_em TIMESTAMPTZ(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
CREATE INDEX IF NOT EXISTS ix_pedidos_produto_id ON pedidos (produto_id);
CREATE INDEX IF NOT EXISTS ix_pedidos_status ON pedidos (status);

CREATE TABLE IF NOT EXISTS order_events (
  id CHAR(36) NOT NULL PRIMARY KEY,
  order_id CHAR(36) NOT NULL REFERENCES pedidos(id) ON DELETE CASCADE,
  actor VARCHAR(64) NOT NULL,
  action VARCHAR(32) NOT NULL,
  from_status VARCHAR(16) NOT NULL,
  to_status VARCHAR(16) NOT NULL,
  note VARCHAR(255) NULL,
  created_at TIMESTAMPTZ(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
CREATE INDEX IF NOT EXISTS ix_order_events_order_id ON order_events (order_id);

CREATE TABLE IF NOT EXISTS payments (
  id CHAR(36) NOT NULL PRIMARY KEY,
  order_id CHAR(36) NOT NULL REFERENCES pedidos(id) ON DELETE CASCADE,
  active BOOLEAN NOT NULL,
  provider VARCHAR(64) NOT NULL,
  provider_ref VARCHAR(128) NOT NULL,
  customer_ref VARCHAR(128) NOT NULL,
  billing_type VARCHAR(16) NOT NULL,
  provider_status VARCHAR(32) NOT NULL,
  amount_cents BIGINT NOT NULL,
  due_date VARCHAR(10) NULL,
  pix_expires_at TIMESTAMPTZ(3) NULL,
  created_at TIMESTAMPTZ(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
  updated_at TIMESTAMPTZ(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_provider_ref ON payments (provider, provider_ref);
CREATE INDEX IF NOT EXISTS ix_payments_order_active ON payments (order_id, active);

CREATE TABLE IF NOT EXISTS provider_events (
  id CHAR(36) NOT NULL PRIMARY KEY,
  provider VARCHAR(64) NOT NULL,
  event_id VARCHAR(128) NOT NULL,
  event_type VARCHAR(64) NOT NULL,
  payment_ref VARCHAR(128) NOT NULL,
  payload_json JSONB NOT NULL,
  received_at TIMESTAMPTZ(3) NOT NULL,
  processed_at TIMESTAMPTZ(3) NULL,
  process_error VARCHAR(255) NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_provider_events_provider_event ON provider_events (provider, event_id);

CREATE TABLE IF NOT EXISTS gateway_settings (
  id SERIAL PRIMARY KEY,
  integration_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  pix_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  card_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  sandbox BOOLEAN NOT NULL DEFAULT TRUE,
  api_key_production VARCHAR(255) NULL,
  api_key_sandbox VARCHAR(255) NULL,
  updated_at TIMESTAMPTZ(3) NULL
);
`

const postgresSeed = `
INSERT INTO gateway_settings (integration_enabled, pix_enabled, card_enabled, sandbox, updated_at)
SELECT FALSE, FALSE, FALSE, TRUE, CURRENT_TIMESTAMP(3)
WHERE NOT EXISTS (SELECT 1 FROM gateway_settings);
`

// ddl returns the schema and seed for a DB_DRIVER value.
func ddl(driver string) (schema, seed string, err error) {
	switch driver {
	case "mysql":
		return mysqlSchema, mysqlSeed, nil
	case "postgres":
		return postgresSchema, postgresSeed, nil
	default:
		return "", "", fmt.Errorf("no DDL for DB_DRIVER=%s (mysql, postgres)", driver)
	}
}

// open connects with multi-statement Exec enabled: multiStatements on MySQL,
// the simple query protocol on Postgres.
func open(driver, dsn string) (*gorm.DB, error) {
	if driver == "postgres" {
		return gorm.Open(postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), &gorm.Config{})
	}
	dc, err := drivermysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("DB_DSN: %w", err)
	}
	dc.MultiStatements = true
	dc.ParseTime = true
	return gorm.Open(mysql.Open(dc.FormatDSN()), &gorm.Config{})
}

func main() {
	withSeed := flag.Bool("seed", true, "insert the disabled gateway_settings row when missing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	schema, seed, err := ddl(cfg.DB.Driver)
	if err != nil {
		log.Fatalf("createtable: %v", err)
	}
	db, err := open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get DB: %v", err)
	}
	defer sqlDB.Close()

	if _, err := sqlDB.Exec(schema); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}
	log.Println("✓ produtos, pedidos, order_events, payments, provider_events, gateway_settings")

	if *withSeed {
		if _, err := sqlDB.Exec(seed); err != nil {
			log.Fatalf("Failed to seed gateway_settings: %v", err)
		}
		log.Println("✓ gateway_settings row present")
	}
}
