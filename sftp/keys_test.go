package sftp

import (
	"golang.org/x/crypto/ssh"
	"testing"
)

func Test_GenerateHostKey(t *testing.T) {
	tests := []struct {
		kind     string
		wantType string
		wantErr  bool
	}{
		{"", ssh.KeyAlgoED25519, false},
		{"ed25519", ssh.KeyAlgoED25519, false},
		{"ECDSA", ssh.KeyAlgoECDSA256, false},
		{"rsa", ssh.KeyAlgoRSA, false},
		{"dsa", "", true},
	}

	for _, tt := range tests {
		t.Run("kind-"+tt.kind, func(t *testing.T) {
			pemKey, err := GenerateHostKey(tt.kind)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			signer, err := ssh.ParsePrivateKey(pemKey)
			if err != nil {
				t.Fatal(err)
			}
			if got := signer.PublicKey().Type(); got != tt.wantType {
				t.Errorf("key type = %s, want %s", got, tt.wantType)
			}
		})
	}
}
