// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

// GlobalType is the set of types defined per section of the PSKT format that
// are allowed in the global scope of a PSKT packet.
type GlobalType uint8

const (
	// UnsignedTxType is the type of the unsigned transaction the PSKT
	// packet is based on. Every packet must carry exactly one entry of
	// this type in its global map.
	UnsignedTxType GlobalType = 0

	// XpubType houses a global extended public key along with its key
	// origin information (master key fingerprint and derivation path).
	XpubType GlobalType = 1

	// VersionType houses the global version number of this PSKT packet. A
	// missing entry implies version zero.
	VersionType GlobalType = 0xfb

	// ProprietaryGlobalType is used for vendor extension entries in the
	// global scope. Entries of this type are carried opaquely.
	ProprietaryGlobalType GlobalType = 0xfc
)

// InputType is the set of types defined per section of the PSKT format that
// are allowed in the per-input scope of a PSKT packet.
type InputType uint32

const (
	// NonWitnessUtxoType houses the full transaction that created the
	// output being spent by this input.
	NonWitnessUtxoType InputType = 0

	// WitnessUtxoType houses only the previous output (amount and locking
	// script) being spent by this input.
	WitnessUtxoType InputType = 1

	// PartialSigType houses a signature for this input, keyed by the
	// public key that produced it.
	PartialSigType InputType = 2

	// SighashType houses the sighash type to be used when producing
	// signatures for this input.
	SighashType InputType = 3

	// RedeemScriptInputType houses the redeem script needed to spend a
	// pay-to-script-hash output.
	RedeemScriptInputType InputType = 4

	// WitnessScriptInputType houses the witness script needed to spend a
	// pay-to-witness-script-hash output.
	WitnessScriptInputType InputType = 5

	// Bip32DerivationInputType houses the derivation path of a public key
	// involved in this input, keyed by that public key.
	Bip32DerivationInputType InputType = 6

	// FinalScriptSigType houses the fully constructed signature script
	// that satisfies this input.
	FinalScriptSigType InputType = 7

	// FinalScriptWitnessType houses the fully constructed witness stack
	// that satisfies this input.
	FinalScriptWitnessType InputType = 8

	// PorCommitmentType houses a proof-of-reserves commitment.
	PorCommitmentType InputType = 9

	// Ripemd160PreimageType houses a RIPEMD160 hash preimage, keyed by the
	// 20-byte digest of the preimage.
	Ripemd160PreimageType InputType = 0x0a

	// Sha256PreimageType houses a SHA256 hash preimage, keyed by the
	// 32-byte digest of the preimage.
	Sha256PreimageType InputType = 0x0b

	// Hash160PreimageType houses a HASH160 (SHA256 then RIPEMD160) hash
	// preimage, keyed by the 20-byte digest of the preimage.
	Hash160PreimageType InputType = 0x0c

	// Hash256PreimageType houses a HASH256 (double SHA256) hash preimage,
	// keyed by the 32-byte digest of the preimage.
	Hash256PreimageType InputType = 0x0d

	// RequiredTimeLocktimeType houses a Unix timestamp the transaction
	// locktime must be at least as large as for this input to validate.
	RequiredTimeLocktimeType InputType = 0x11

	// RequiredHeightLocktimeType houses a block height the transaction
	// locktime must be at least as large as for this input to validate.
	RequiredHeightLocktimeType InputType = 0x12

	// TaprootKeySpendSignatureType houses the schnorr signature for the
	// taproot key spend path of this input.
	TaprootKeySpendSignatureType InputType = 0x13

	// TaprootScriptSpendSignatureType houses a schnorr signature for a
	// taproot script spend path, keyed by the x-only public key and the
	// leaf hash it commits to.
	TaprootScriptSpendSignatureType InputType = 0x14

	// TaprootLeafScriptType houses a leaf script of the taproot script
	// tree, keyed by its control block.
	TaprootLeafScriptType InputType = 0x15

	// TaprootBip32DerivationInputType houses the derivation path and leaf
	// hashes of an x-only public key involved in this input.
	TaprootBip32DerivationInputType InputType = 0x16

	// TaprootInternalKeyInputType houses the x-only internal key used when
	// constructing the taproot output this input spends.
	TaprootInternalKeyInputType InputType = 0x17

	// TaprootMerkleRootType houses the merkle root of the taproot script
	// tree of the output this input spends.
	TaprootMerkleRootType InputType = 0x18

	// ProprietaryInputType is used for vendor extension entries in the
	// per-input scope. Entries of this type are carried opaquely.
	ProprietaryInputType InputType = 0xfc
)

// OutputType is the set of types defined per section of the PSKT format that
// are allowed in the per-output scope of a PSKT packet.
type OutputType uint32

const (
	// RedeemScriptOutputType houses the redeem script of this output.
	RedeemScriptOutputType OutputType = 0

	// WitnessScriptOutputType houses the witness script of this output.
	WitnessScriptOutputType OutputType = 1

	// Bip32DerivationOutputType houses the derivation path of a public
	// key this output pays to, keyed by that public key.
	Bip32DerivationOutputType OutputType = 2

	// AmountOutputType houses an explicit amount override for this output,
	// used when the output set is described independently of the embedded
	// unsigned transaction.
	AmountOutputType OutputType = 3

	// ScriptOutputType houses an explicit locking script override for
	// this output.
	ScriptOutputType OutputType = 4

	// TaprootInternalKeyOutputType houses the x-only internal key used
	// when constructing this taproot output.
	TaprootInternalKeyOutputType OutputType = 5

	// TaprootTapTreeType houses the taproot script tree of this output.
	TaprootTapTreeType OutputType = 6

	// TaprootBip32DerivationOutputType houses the derivation path and
	// leaf hashes of an x-only public key involved in this output.
	TaprootBip32DerivationOutputType OutputType = 7

	// ProprietaryOutputType is used for vendor extension entries in the
	// per-output scope. Entries of this type are carried opaquely.
	ProprietaryOutputType OutputType = 0xfc
)
