package collaborators

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/argon2"

	"github.com/solcopy/engine/internal/store"
)

// Argon2 parameters for trading-wallet secret encryption, carried over
// unchanged from the source project's seed-encryption scheme.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

const secretFormatVersion byte = 1

// EncryptSecret seals a 64-byte ed25519 private key for storage in
// TradingWallet.EncryptedSecret. The output packs version, salt, nonce and
// ciphertext into one opaque blob; the store never sees any of it decoded.
func EncryptSecret(secretKey []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("collaborators: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("collaborators: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("collaborators: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("collaborators: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, secretKey, nil)

	out := make([]byte, 0, 1+len(salt)+len(nonce)+len(ciphertext))
	out = append(out, secretFormatVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func decryptSecret(blob []byte, passphrase string) ([]byte, error) {
	if len(blob) < 1+argon2SaltLen {
		return nil, fmt.Errorf("collaborators: encrypted secret too short")
	}
	if blob[0] != secretFormatVersion {
		return nil, fmt.Errorf("collaborators: unsupported secret format version %d", blob[0])
	}

	salt := blob[1 : 1+argon2SaltLen]
	rest := blob[1+argon2SaltLen:]

	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("collaborators: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("collaborators: new gcm: %w", err)
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("collaborators: encrypted secret missing nonce")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("collaborators: decrypt secret (wrong passphrase?): %w", err)
	}
	return plaintext, nil
}

func secureClear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// LocalSignerFactory is the reference SignerFactory: trading wallets are
// Argon2id+AES-256-GCM encrypted ed25519 keys held in the store. SignerFor
// decrypts a wallet's key in-process, and the returned Signer holds the
// decrypted key for as long as the caller keeps it. Secret custody here is
// local cryptography rather than an external system (unlike ApiManager's
// price feeds or LeaderTracker's Jito relationship).
type LocalSignerFactory struct {
	store      store.Store
	passphrase string
}

// NewLocalSignerFactory builds a factory that decrypts wallets with
// passphrase. The passphrase never touches disk; it is supplied once at
// startup (environment variable or an operator prompt, outside this
// package's concern).
func NewLocalSignerFactory(st store.Store, passphrase string) *LocalSignerFactory {
	return &LocalSignerFactory{store: st, passphrase: passphrase}
}

// SignerFor decrypts the named wallet's secret key and returns a Signer
// bound to it. The decrypted key is held only by the returned value, never
// cached in the factory.
func (f *LocalSignerFactory) SignerFor(ctx context.Context, chatID int64, walletLabel string) (Signer, error) {
	wallet, err := f.store.GetWallet(ctx, chatID, walletLabel)
	if err != nil {
		return nil, fmt.Errorf("collaborators: load wallet: %w", err)
	}

	secretKey, err := decryptSecret(wallet.EncryptedSecret, f.passphrase)
	if err != nil {
		return nil, err
	}

	priv := solana.PrivateKey(secretKey)
	if !priv.PublicKey().Equals(wallet.Pubkey) {
		secureClear(secretKey)
		return nil, fmt.Errorf("collaborators: decrypted key does not match wallet %s", wallet.Pubkey)
	}

	return &localSigner{pub: wallet.Pubkey, priv: priv}, nil
}

type localSigner struct {
	pub  solana.PublicKey
	priv solana.PrivateKey
}

func (s *localSigner) PublicKey() solana.PublicKey { return s.pub }

func (s *localSigner) Sign(message []byte) (solana.Signature, error) {
	return s.priv.Sign(message)
}
