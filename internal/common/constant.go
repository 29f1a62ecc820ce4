package common

// Remote object names shared by every device of one account.
const (
	HistoryFileName  = "chat_history.json"
	LoginLogFileName = "login_logs.txt"
	ThumbnailPrefix  = "thumb_"
)

// Metadata keys kept in the local account database.
const (
	MetaCurrentAccount = "current_account_id"
	MetaDeviceID       = "device_id"
	MetaVaultSalt      = "vault_salt"
	MetaVaultVerifier  = "vault_verifier"
)
