package finbot

// Application-wide defaults shared by config loading and the CLI.
const (
	DefaultAppName    = "finbot"
	DefaultConfigPath = "/etc/finbot"
	DefaultDataDir    = ".finbot"

	// DefaultDatabasePath is the embedded libsql database holding the
	// persisted passage store and the conversation audit log.
	DefaultDatabasePath = ".finbot/finbot.db"

	// DefaultStoreID keys the persisted guideline embedding store. Rebuilding
	// under the same ID reuses the existing store.
	DefaultStoreID = "guideline"

	// DefaultGuidelinePath is the regulatory guideline document the retrieval
	// engine is built from.
	DefaultGuidelinePath = "assets/guidelines/automated-trading-guidelines.txt"
)
