package journal

const Schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	key TEXT PRIMARY KEY,
	currency TEXT NOT NULL,
	cash TEXT NOT NULL,
	initial_balance TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
	portfolio_key TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	avg_cost TEXT NOT NULL,
	PRIMARY KEY (portfolio_key, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	portfolio_key TEXT NOT NULL,
	side TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	total TEXT NOT NULL,
	realized_pl TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_key, time);

CREATE TABLE IF NOT EXISTS limit_orders (
	id TEXT PRIMARY KEY,
	portfolio_key TEXT NOT NULL,
	side TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	target_price REAL NOT NULL,
	expires_at DATETIME,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	execution_price TEXT NOT NULL,
	total_value TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS instruments (
	symbol TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	company TEXT NOT NULL,
	sector TEXT NOT NULL,
	price REAL NOT NULL,
	previous_close REAL NOT NULL,
	open REAL NOT NULL,
	volatility REAL NOT NULL,
	sentiment REAL NOT NULL,
	history TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS news (
	time DATETIME NOT NULL,
	headline TEXT NOT NULL,
	scope TEXT NOT NULL,
	symbol TEXT NOT NULL,
	sector TEXT NOT NULL,
	impact REAL NOT NULL,
	source TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_news_time ON news(time);
`
