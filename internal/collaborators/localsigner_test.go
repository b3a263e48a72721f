package collaborators

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/store"
)

type fakeWalletStore struct {
	store.Store
	wallets map[string]*store.TradingWallet
}

func (f *fakeWalletStore) GetWallet(ctx context.Context, chatID int64, label string) (*store.TradingWallet, error) {
	w, ok := f.wallets[label]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	return w, nil
}

func TestEncryptDecryptSecretRoundTrip(t *testing.T) {
	secret := solana.NewWallet().PrivateKey
	blob, err := EncryptSecret(secret, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncryptSecret() error = %v", err)
	}

	got, err := decryptSecret(blob, "correct horse battery staple")
	if err != nil {
		t.Fatalf("decryptSecret() error = %v", err)
	}
	if string(got) != string(secret) {
		t.Error("decrypted secret does not match the original")
	}
}

func TestDecryptSecretWrongPassphraseFails(t *testing.T) {
	secret := solana.NewWallet().PrivateKey
	blob, err := EncryptSecret(secret, "correct horse battery staple")
	if err != nil {
		t.Fatalf("EncryptSecret() error = %v", err)
	}

	if _, err := decryptSecret(blob, "wrong passphrase"); err == nil {
		t.Error("expected an error decrypting with the wrong passphrase")
	}
}

func TestLocalSignerFactorySignsWithMatchingKey(t *testing.T) {
	wallet := solana.NewWallet()
	blob, err := EncryptSecret(wallet.PrivateKey, "hunter2hunter2")
	if err != nil {
		t.Fatalf("EncryptSecret() error = %v", err)
	}

	st := &fakeWalletStore{wallets: map[string]*store.TradingWallet{
		"main": {OwnerChatID: 1, Label: "main", Pubkey: wallet.PublicKey(), EncryptedSecret: blob},
	}}
	factory := NewLocalSignerFactory(st, "hunter2hunter2")

	signer, err := factory.SignerFor(context.Background(), 1, "main")
	if err != nil {
		t.Fatalf("SignerFor() error = %v", err)
	}
	if !signer.PublicKey().Equals(wallet.PublicKey()) {
		t.Error("signer public key does not match the wallet")
	}

	sig, err := signer.Sign([]byte("message"))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !sig.Verify(wallet.PublicKey(), []byte("message")) {
		t.Error("signature does not verify against the wallet's public key")
	}
}

func TestLocalSignerFactoryRejectsMismatchedKey(t *testing.T) {
	wallet := solana.NewWallet()
	other := solana.NewWallet()
	blob, err := EncryptSecret(other.PrivateKey, "hunter2hunter2")
	if err != nil {
		t.Fatalf("EncryptSecret() error = %v", err)
	}

	st := &fakeWalletStore{wallets: map[string]*store.TradingWallet{
		"main": {OwnerChatID: 1, Label: "main", Pubkey: wallet.PublicKey(), EncryptedSecret: blob},
	}}
	factory := NewLocalSignerFactory(st, "hunter2hunter2")

	if _, err := factory.SignerFor(context.Background(), 1, "main"); err == nil {
		t.Error("expected a mismatched-key error")
	}
}
