package cryptoengine

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/keychainpgp/core/internal/keychainerr"
)

// PGPEngine implements Engine on top of ProtonMail/go-crypto, the Go
// ecosystem's OpenPGP library (RFC 9580 aware successor to
// golang.org/x/crypto/openpgp).
type PGPEngine struct {
	cfg Config
}

// New returns a PGPEngine with the given policy configuration.
func New(cfg Config) *PGPEngine {
	return &PGPEngine{cfg: cfg}
}

func (e *PGPEngine) armorHeaders() map[string]string {
	if e.cfg.IncludeArmorMetadata {
		return map[string]string{"Comment": "KeychainPGP"}
	}
	return nil
}

func (e *PGPEngine) packetConfig() *packet.Config {
	return &packet.Config{
		Algorithm:     packet.PubKeyAlgoEdDSA,
		Curve:         packet.Curve25519,
		DefaultCipher: packet.CipherAES256,
		AEADConfig:    &packet.AEADConfig{}, // enables SEIPDv2/OCB per spec.md §4.1
		Time:          time.Now,
	}
}

func (e *PGPEngine) GenerateKeypair(opts KeyGenOptions) (GeneratedKeyPair, error) {
	expiration := opts.Expiration
	if expiration == 0 {
		expiration = DefaultExpiration
	}

	cfg := e.packetConfig()
	cfg.KeyLifetimeSecs = uint32(expiration.Seconds())

	entity, err := openpgp.NewEntity(opts.UserID.Name, "", opts.UserID.Email, cfg)
	if err != nil {
		return GeneratedKeyPair{}, keychainerr.Wrap(keychainerr.MalformedCertificate, "key generation failed", err)
	}

	if len(opts.Passphrase) > 0 {
		if err := entity.PrivateKey.Encrypt(opts.Passphrase); err != nil {
			return GeneratedKeyPair{}, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to protect primary key", err)
		}
		for _, sk := range entity.Subkeys {
			if err := sk.PrivateKey.Encrypt(opts.Passphrase); err != nil {
				return GeneratedKeyPair{}, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to protect subkey", err)
			}
		}
	}

	pub, err := e.serialize(openpgp.PublicKeyType, entity.Serialize)
	if err != nil {
		return GeneratedKeyPair{}, err
	}

	sec, err := e.serialize(openpgp.PrivateKeyType, func(w io.Writer) error {
		return entity.SerializePrivate(w, nil)
	})
	if err != nil {
		return GeneratedKeyPair{}, err
	}

	if err := entity.RevokeKey(packet.NoReason, "", cfg); err != nil {
		return GeneratedKeyPair{}, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to build revocation certificate", err)
	}
	rev, err := e.serialize(openpgp.PublicKeyType, func(w io.Writer) error {
		for _, sig := range entity.Revocations {
			if err := sig.Serialize(w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GeneratedKeyPair{}, err
	}

	return GeneratedKeyPair{
		CertificateArmored: pub,
		SecretKeyArmored:   sec,
		RevocationArmored:  rev,
		Fingerprint:        fingerprintHex(entity.PrimaryKey.Fingerprint),
	}, nil
}

func (e *PGPEngine) serialize(blockType string, write func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, blockType, e.armorHeaders())
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to open armor writer", err)
	}
	if err := write(w); err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to serialize", err)
	}
	if err := w.Close(); err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to finalize armor", err)
	}
	return buf.Bytes(), nil
}

func (e *PGPEngine) Encrypt(plaintext []byte, recipientCerts [][]byte) ([]byte, error) {
	if len(recipientCerts) == 0 {
		return nil, keychainerr.New(keychainerr.NoRecipients, "no recipients specified")
	}

	var recipients openpgp.EntityList
	for i, raw := range recipientCerts {
		entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
		if err != nil || len(entities) == 0 {
			return nil, keychainerr.Wrapf(keychainerr.RecipientUnusable, "recipient %d: invalid certificate", err, i)
		}
		entity := entities[0]
		if _, ok := entity.EncryptionKey(time.Now()); !ok {
			return nil, keychainerr.Newf(keychainerr.RecipientUnusable, "recipient %d has no usable encryption subkey", i)
		}
		recipients = append(recipients, entity)
	}

	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, "PGP MESSAGE", e.armorHeaders())
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCiphertext, "failed to open armor writer", err)
	}

	cipherWriter, err := openpgp.Encrypt(armorWriter, recipients, nil, nil, e.packetConfig())
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.RecipientUnusable, "failed to start encryption", err)
	}
	if _, err := cipherWriter.Write(plaintext); err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCiphertext, "failed to write plaintext", err)
	}
	if err := cipherWriter.Close(); err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCiphertext, "failed to finalize message", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCiphertext, "failed to finalize armor", err)
	}

	return buf.Bytes(), nil
}

func (e *PGPEngine) Decrypt(ciphertext, secretKey, passphrase []byte) ([]byte, []SignerInfo, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(secretKey))
	if err != nil || len(entities) == 0 {
		return nil, nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "invalid secret key", err)
	}
	entity := entities[0]

	if entity.PrivateKey != nil && entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return nil, nil, keychainerr.New(keychainerr.PassphraseRequired, "secret key is passphrase protected")
		}
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return nil, nil, keychainerr.Wrap(keychainerr.BadPassphrase, "incorrect passphrase", err)
		}
	}
	for _, sk := range entity.Subkeys {
		if sk.PrivateKey != nil && sk.PrivateKey.Encrypted {
			if len(passphrase) == 0 {
				return nil, nil, keychainerr.New(keychainerr.PassphraseRequired, "secret key is passphrase protected")
			}
			if err := sk.PrivateKey.Decrypt(passphrase); err != nil {
				return nil, nil, keychainerr.Wrap(keychainerr.BadPassphrase, "incorrect passphrase", err)
			}
		}
	}

	block, err := armor.Decode(bytes.NewReader(ciphertext))
	var reader io.Reader = bytes.NewReader(ciphertext)
	if err == nil {
		reader = block.Body
	}

	md, err := openpgp.ReadMessage(reader, openpgp.EntityList{entity}, nil, nil)
	if err != nil {
		return nil, nil, keychainerr.Wrap(keychainerr.WrongKey, "no usable decryption key found for this message", err)
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, nil, keychainerr.Wrap(keychainerr.Tampered, "message authentication failed", err)
	}

	var signers []SignerInfo
	if md.IsSigned {
		verified := md.SignedBy != nil && md.SignatureError == nil
		fp := ""
		if md.SignedBy != nil {
			fp = fingerprintHex(md.SignedBy.PublicKey.Fingerprint)
		} else {
			fp = fmt.Sprintf("%016X", md.SignedByKeyId)
		}
		signers = append(signers, SignerInfo{Fingerprint: fp, Verified: verified})
	}

	return plaintext, signers, nil
}

func (e *PGPEngine) Sign(data, secretKey, passphrase []byte) ([]byte, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(secretKey))
	if err != nil || len(entities) == 0 {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "invalid secret key", err)
	}
	entity := entities[0]

	if entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return nil, keychainerr.New(keychainerr.PassphraseRequired, "secret key is passphrase protected")
		}
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return nil, keychainerr.Wrap(keychainerr.BadPassphrase, "incorrect passphrase", err)
		}
	}

	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, entity.PrivateKey, e.packetConfig())
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to start signature", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to write signed data", err)
	}
	if err := w.Close(); err != nil {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to finalize signature", err)
	}
	return buf.Bytes(), nil
}

func (e *PGPEngine) Verify(signedBlob []byte, candidateCerts [][]byte) (VerifyResult, error) {
	block, rest := clearsign.Decode(signedBlob)
	if block == nil {
		return VerifyResult{}, keychainerr.New(keychainerr.MalformedCiphertext, "not a recognizable signed message")
	}
	_ = rest

	for _, raw := range candidateCerts {
		entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
		if err != nil {
			continue
		}
		signer, err := openpgp.CheckDetachedSignature(entities, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
		if err != nil || signer == nil {
			continue
		}
		return VerifyResult{
			Valid:             true,
			SignerFingerprint: fingerprintHex(signer.PrimaryKey.Fingerprint),
			VerifiedAt:        time.Now(),
		}, nil
	}

	return VerifyResult{Valid: false}, nil
}

func (e *PGPEngine) Inspect(certOrBundle []byte) (CertInfo, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(certOrBundle))
	if err != nil || len(entities) == 0 {
		return CertInfo{}, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to parse certificate", err)
	}
	entity := entities[0]

	info := CertInfo{
		Fingerprint: fingerprintHex(entity.PrimaryKey.Fingerprint),
		Algorithm:   AlgorithmEd25519,
		CreatedAt:   entity.PrimaryKey.CreationTime,
		HasSecret:   entity.PrivateKey != nil,
	}

	for _, ident := range entity.Identities {
		info.UserIDs = append(info.UserIDs, UserId{Name: ident.UserId.Name, Email: ident.UserId.Email})
		if ident.SelfSignature != nil && ident.SelfSignature.KeyLifetimeSecs != nil {
			exp := entity.PrimaryKey.CreationTime.Add(time.Duration(*ident.SelfSignature.KeyLifetimeSecs) * time.Second)
			info.ExpiresAt = &exp
		}
	}

	for _, sk := range entity.Subkeys {
		var caps []string
		if sk.Sig.FlagsValid {
			if sk.Sig.FlagSign {
				caps = append(caps, "sign")
			}
			if sk.Sig.FlagEncryptCommunications || sk.Sig.FlagEncryptStorage {
				caps = append(caps, "encrypt")
			}
			if sk.Sig.FlagCertify {
				caps = append(caps, "certify")
			}
			if sk.Sig.FlagAuthenticate {
				caps = append(caps, "authenticate")
			}
		}
		var expires *time.Time
		if sk.Sig.KeyLifetimeSecs != nil {
			exp := sk.PublicKey.CreationTime.Add(time.Duration(*sk.Sig.KeyLifetimeSecs) * time.Second)
			expires = &exp
		}
		info.Subkeys = append(info.Subkeys, SubkeyInfo{
			Fingerprint:  fingerprintHex(sk.PublicKey.Fingerprint),
			Capabilities: caps,
			CreatedAt:    sk.PublicKey.CreationTime,
			ExpiresAt:    expires,
			Revoked:      sk.Sig.SigType == packet.SigTypeSubkeyRevocation,
		})
	}

	return info, nil
}

func (e *PGPEngine) ExtractPublicCert(certOrBundle []byte) ([]byte, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(certOrBundle))
	if err != nil || len(entities) == 0 {
		return nil, keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to parse certificate", err)
	}
	return e.serialize(openpgp.PublicKeyType, entities[0].Serialize)
}

func fingerprintHex(fp []byte) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(fp)*2)
	for i, b := range fp {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0F]
	}
	return string(out)
}
