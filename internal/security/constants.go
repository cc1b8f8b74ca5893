package security

const (
	errKeyringNotAvailable = "keyring not available"
	keySSHPassphraseFmt    = "ssh-passphrase:%s"
	keyHostFmt             = "host:%s@%s"
)
