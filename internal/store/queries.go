package store

// Placeholders are written as $n in ascending order of first use so the same
// text binds correctly on both postgres and sqlite3.
const (
	// User queries
	queryGetUserByID = `
		SELECT id, username, password_hash, cash, initial_cash, created_at
		FROM users
		WHERE id = $1`

	queryGetUserByUsername = `
		SELECT id, username, password_hash, cash, initial_cash, created_at
		FROM users
		WHERE username = $1`

	queryListUserIDs = `
		SELECT id
		FROM users
		ORDER BY id`

	queryInsertUser = `
		INSERT INTO users (username, password_hash, cash, initial_cash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	// Ledger queries
	queryGetCash = `
		SELECT cash
		FROM users
		WHERE id = $1`

	queryGetCashForUpdate = queryGetCash + `
		FOR UPDATE`

	queryUpdateCash = `
		UPDATE users
		SET cash = $1
		WHERE id = $2`

	queryInsertTransaction = `
		INSERT INTO transactions (user_id, symbol, name, shares, price, type, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	queryListTransactions = `
		SELECT id, user_id, symbol, name, shares, price, type, time
		FROM transactions
		WHERE user_id = $1
		ORDER BY time, id`

	queryLatestTransactionTime = `
		SELECT time
		FROM transactions
		WHERE user_id = $1
		ORDER BY time DESC, id DESC
		LIMIT 1`

	queryCountTransactions = `
		SELECT COUNT(1)
		FROM transactions
		WHERE user_id = $1`

	queryListTransactionsPage = queryListTransactions + `
		LIMIT $2 OFFSET $3`

	queryAggregateShares = `
		SELECT symbol, SUM(shares)
		FROM transactions
		WHERE user_id = $1
		GROUP BY symbol
		ORDER BY symbol`

	querySharesOfSymbol = `
		SELECT COALESCE(SUM(shares), 0)
		FROM transactions
		WHERE user_id = $1 AND symbol = $2`

	// Session queries
	queryRevokeToken = `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING`

	queryIsTokenRevoked = `
		SELECT COUNT(1)
		FROM revoked_tokens
		WHERE jti = $1`

	queryPurgeRevokedTokens = `
		DELETE FROM revoked_tokens
		WHERE expires_at < $1`
)
