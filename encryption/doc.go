// Package encryption seals and opens small secrets, such as the diarization
// service credential, so they can be stored in configuration files without
// appearing in plain text.
//
// ChaCha20-Poly1305 is the default cipher; AES-256-GCM is available for
// deployments that standardise on it. Keys are passphrases hashed with
// SHA-256. Ciphertexts are base64 strings carrying their random nonce.
//
// # Usage
//
//	enc, err := encryption.New(passphrase, encryption.AlgorithmChaCha20)
//	sealed, err := enc.Encrypt(token)
//	token, err := enc.Decrypt(sealed)
package encryption
