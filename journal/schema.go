package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	action TEXT NOT NULL,
	pair TEXT NOT NULL,
	side TEXT NOT NULL DEFAULT '',
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	quote_amount REAL NOT NULL,
	order_id TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	entry_price REAL NOT NULL DEFAULT 0,
	pnl REAL NOT NULL DEFAULT 0,
	fee REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	price REAL NOT NULL,
	base REAL NOT NULL,
	quote REAL NOT NULL,
	equity REAL NOT NULL,
	profit REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
