package db

// Valores monetários são NUMERIC(20,2); preços NUMERIC(24,8).
// Em SQLite tudo que é decimal ou horário fica em TEXT para não passar por float.

const postgresSchema = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id        TEXT PRIMARY KEY,
    balance        NUMERIC(20,2) NOT NULL DEFAULT 0,
    locked_balance NUMERIC(20,2) NOT NULL DEFAULT 0,
    total_wagered  NUMERIC(20,2) NOT NULL DEFAULT 0,
    total_won      NUMERIC(20,2) NOT NULL DEFAULT 0,
    total_lost     NUMERIC(20,2) NOT NULL DEFAULT 0,
    version        BIGINT        NOT NULL DEFAULT 1,
    updated_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    CONSTRAINT wallets_locked_non_negative CHECK (locked_balance >= 0),
    CONSTRAINT wallets_locked_le_balance   CHECK (locked_balance <= balance)
);

CREATE TABLE IF NOT EXISTS wallet_ledger (
    id             BIGSERIAL PRIMARY KEY,
    user_id        TEXT          NOT NULL REFERENCES wallets(user_id),
    operation_type TEXT          NOT NULL,
    amount         NUMERIC(20,2) NOT NULL,
    balance_after  NUMERIC(20,2) NOT NULL,
    locked_after   NUMERIC(20,2) NOT NULL,
    reference      TEXT          NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_wallet_ledger_user ON wallet_ledger(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS rounds (
    id               UUID PRIMARY KEY,
    seq              BIGINT        NOT NULL UNIQUE,
    status           TEXT          NOT NULL,
    start_time       TIMESTAMPTZ   NOT NULL,
    lock_time        TIMESTAMPTZ   NOT NULL,
    end_time         TIMESTAMPTZ   NOT NULL,
    start_price      NUMERIC(24,8),
    end_price        NUMERIC(24,8),
    result           TEXT,
    up_stake_total   NUMERIC(20,2) NOT NULL DEFAULT 0,
    down_stake_total NUMERIC(20,2) NOT NULL DEFAULT 0,
    up_bet_count     INTEGER       NOT NULL DEFAULT 0,
    down_bet_count   INTEGER       NOT NULL DEFAULT 0,
    fee_collected    NUMERIC(20,2) NOT NULL DEFAULT 0,
    platform_cut     NUMERIC(20,2) NOT NULL DEFAULT 0,
    prize_pool       NUMERIC(20,2) NOT NULL DEFAULT 0,
    is_processed     BOOLEAN       NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    CONSTRAINT rounds_lock_before_end CHECK (end_time - lock_time >= INTERVAL '30 seconds')
);
CREATE INDEX IF NOT EXISTS idx_rounds_status_start ON rounds(status, start_time);
CREATE INDEX IF NOT EXISTS idx_rounds_status_lock  ON rounds(status, lock_time);
CREATE INDEX IF NOT EXISTS idx_rounds_status_end   ON rounds(status, end_time);

CREATE TABLE IF NOT EXISTS bets (
    id           UUID PRIMARY KEY,
    user_id      TEXT          NOT NULL REFERENCES wallets(user_id),
    round_id     UUID          NOT NULL REFERENCES rounds(id),
    prediction   TEXT          NOT NULL,
    total_amount NUMERIC(20,2) NOT NULL,
    fee_amount   NUMERIC(20,2) NOT NULL,
    stake_amount NUMERIC(20,2) NOT NULL,
    result       TEXT          NOT NULL DEFAULT 'PENDING',
    payout       NUMERIC(20,2) NOT NULL DEFAULT 0,
    profit       NUMERIC(20,2) NOT NULL DEFAULT 0,
    is_paid      BOOLEAN       NOT NULL DEFAULT FALSE,
    created_at   TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    settled_at   TIMESTAMPTZ,
    CONSTRAINT bets_user_round_unique UNIQUE (user_id, round_id)
);
CREATE INDEX IF NOT EXISTS idx_bets_round ON bets(round_id);
CREATE INDEX IF NOT EXISTS idx_bets_user  ON bets(user_id, created_at DESC);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id        TEXT PRIMARY KEY,
    balance        TEXT    NOT NULL DEFAULT '0.00',
    locked_balance TEXT    NOT NULL DEFAULT '0.00',
    total_wagered  TEXT    NOT NULL DEFAULT '0.00',
    total_won      TEXT    NOT NULL DEFAULT '0.00',
    total_lost     TEXT    NOT NULL DEFAULT '0.00',
    version        INTEGER NOT NULL DEFAULT 1,
    updated_at     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS wallet_ledger (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id        TEXT NOT NULL REFERENCES wallets(user_id),
    operation_type TEXT NOT NULL,
    amount         TEXT NOT NULL,
    balance_after  TEXT NOT NULL,
    locked_after   TEXT NOT NULL,
    reference      TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wallet_ledger_user ON wallet_ledger(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS rounds (
    id               TEXT PRIMARY KEY,
    seq              INTEGER NOT NULL UNIQUE,
    status           TEXT    NOT NULL,
    start_time       TEXT    NOT NULL,
    lock_time        TEXT    NOT NULL,
    end_time         TEXT    NOT NULL,
    start_price      TEXT,
    end_price        TEXT,
    result           TEXT,
    up_stake_total   TEXT    NOT NULL DEFAULT '0.00',
    down_stake_total TEXT    NOT NULL DEFAULT '0.00',
    up_bet_count     INTEGER NOT NULL DEFAULT 0,
    down_bet_count   INTEGER NOT NULL DEFAULT 0,
    fee_collected    TEXT    NOT NULL DEFAULT '0.00',
    platform_cut     TEXT    NOT NULL DEFAULT '0.00',
    prize_pool       TEXT    NOT NULL DEFAULT '0.00',
    is_processed     INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT    NOT NULL,
    updated_at       TEXT    NOT NULL,
    CHECK (lock_time < end_time)
);
CREATE INDEX IF NOT EXISTS idx_rounds_status_start ON rounds(status, start_time);
CREATE INDEX IF NOT EXISTS idx_rounds_status_lock  ON rounds(status, lock_time);
CREATE INDEX IF NOT EXISTS idx_rounds_status_end   ON rounds(status, end_time);

CREATE TABLE IF NOT EXISTS bets (
    id           TEXT PRIMARY KEY,
    user_id      TEXT    NOT NULL REFERENCES wallets(user_id),
    round_id     TEXT    NOT NULL REFERENCES rounds(id),
    prediction   TEXT    NOT NULL,
    total_amount TEXT    NOT NULL,
    fee_amount   TEXT    NOT NULL,
    stake_amount TEXT    NOT NULL,
    result       TEXT    NOT NULL DEFAULT 'PENDING',
    payout       TEXT    NOT NULL DEFAULT '0.00',
    profit       TEXT    NOT NULL DEFAULT '0.00',
    is_paid      INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT    NOT NULL,
    settled_at   TEXT,
    UNIQUE (user_id, round_id)
);
CREATE INDEX IF NOT EXISTS idx_bets_round ON bets(round_id);
CREATE INDEX IF NOT EXISTS idx_bets_user  ON bets(user_id, created_at DESC);
`
