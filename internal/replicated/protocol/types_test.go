package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTxSignAndVerify(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sessionID := uuid.New()
	payload, _ := json.Marshal(EscrowDepositPayload{
		SessionID:    sessionID,
		PayerID:      uuid.New(),
		AmountTokens: 50,
	})
	tx := Tx{
		TxID:      "tx-1",
		SessionID: sessionID.String(),
		Nonce:     "n1",
		Timestamp: time.Now().UTC(),
		Actor:     "service:billing",
		Op:        OpEscrowDeposit,
		Payload:   payload,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	tx.Actor = "service:other"
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected verify failure after tamper")
	}
}

func TestTxValidateBasic(t *testing.T) {
	tx := Tx{
		TxID:      "tx-1",
		Nonce:     "n1",
		Timestamp: time.Now().UTC(),
		Actor:     "service:billing",
		Op:        Operation("UNKNOWN"),
		Payload:   json.RawMessage(`{}`),
		PublicKey: "x",
		Signature: "y",
	}
	if err := tx.ValidateBasic(); err == nil {
		t.Fatalf("expected unsupported op rejection")
	}
}
