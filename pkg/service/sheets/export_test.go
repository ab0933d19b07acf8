package sheets

var (
	Classify            = classify
	IsCredentialExpired = isCredentialExpired
)
