package model

// AccessReport is the result of probing personal and shared mailbox access.
// Probe failures are collected in Errors; one probe failing never prevents
// the other from being recorded.
type AccessReport struct {
	Connected               bool
	PersonalAccessible      bool
	PersonalName            string
	SharedConfigured        bool
	SharedAccessible        bool
	SharedName              string
	RetentionPersonalMonths int
	RetentionSharedMonths   int
	Errors                  []string
}
