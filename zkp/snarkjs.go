package zkp

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"idprivacy/errs"
)

// Snarkjs shells out to the snarkjs CLI.
type Snarkjs struct {
	// Binary is the snarkjs executable, "snarkjs" when empty.
	Binary string
	// TempDir holds the per-proof working directories, os.TempDir when empty.
	TempDir string
}

func (s *Snarkjs) binary() string {
	if s.Binary == "" {
		return "snarkjs"
	}
	return s.Binary
}

// FullProve runs `snarkjs groth16 fullprove` in a scratch directory.
func (s *Snarkjs) FullProve(ctx context.Context, circuit Circuit, input map[string]interface{}) (*RawProof, error) {
	const op = "zkp.FullProve"

	dir, err := os.MkdirTemp(s.TempDir, "fullprove-"+circuit.Name+"-")
	if err != nil {
		return nil, errs.E(errs.Cryptographic, op, err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.json")
	proofPath := filepath.Join(dir, "proof.json")
	publicPath := filepath.Join(dir, "public.json")

	enc, err := json.Marshal(input)
	if err != nil {
		return nil, errs.E(errs.Cryptographic, op, err)
	}
	if err := os.WriteFile(inputPath, enc, 0o600); err != nil {
		return nil, errs.E(errs.Cryptographic, op, err)
	}

	cmd := exec.CommandContext(ctx, s.binary(), "groth16", "fullprove", inputPath, circuit.Wasm, circuit.Zkey, proofPath, publicPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug("Running prover", "circuit", circuit.Name, "wasm", circuit.Wasm)
	if err := cmd.Run(); err != nil {
		return nil, errs.E(errs.Cryptographic, op, errors.Wrapf(err, "snarkjs: %s", bytes.TrimSpace(stderr.Bytes())))
	}

	raw, err := ReadProof(proofPath, publicPath)
	if err != nil {
		return nil, errs.E(errs.Cryptographic, op, err)
	}
	return raw, nil
}

// ReadProof loads a snarkjs proof.json and public.json pair.
func ReadProof(proofPath, publicPath string) (*RawProof, error) {
	proofJSON, err := os.ReadFile(proofPath)
	if err != nil {
		return nil, err
	}
	var raw RawProof
	if err := json.Unmarshal(proofJSON, &raw); err != nil {
		return nil, errors.Wrap(err, "decode proof.json")
	}
	publicJSON, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(publicJSON, &raw.PublicSignals); err != nil {
		return nil, errors.Wrap(err, "decode public.json")
	}
	return &raw, nil
}
