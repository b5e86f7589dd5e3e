package keys

import (
	"testing"
)

func TestSubaddressDerivation(t *testing.T) {
	key, err := RandomAccountKey()
	if err != nil {
		t.Fatalf("RandomAccountKey: %v", err)
	}

	for _, index := range []uint64{0, 1, 7, 100} {
		priv := key.SubaddressSpendPrivate(index)
		if !priv.BaseMult().Equal(key.SubaddressSpendPublic(index)) {
			t.Errorf("index %d: private and public subaddress keys disagree", index)
		}
	}

	if key.SubaddressSpendPublic(0).Equal(key.SubaddressSpendPublic(1)) {
		t.Error("distinct indexes derived the same subaddress")
	}
}

func TestViewOnlyMatchesFullKey(t *testing.T) {
	key, _ := RandomAccountKey()
	viewOnly := key.ViewOnly()

	if key.AccountID() != viewOnly.AccountID() {
		t.Error("view-only key derives a different account id")
	}
	for _, index := range []uint64{0, 1, 42} {
		if !key.SubaddressSpendPublic(index).Equal(viewOnly.SubaddressSpendPublic(index)) {
			t.Errorf("index %d: view-only subaddress differs from full key", index)
		}
	}
	if !key.Subaddress(5).Equal(viewOnly.Subaddress(5)) {
		t.Error("view-only address differs from full key address")
	}
}

func TestAccountIDStable(t *testing.T) {
	key, _ := RandomAccountKey()
	if key.AccountID() != key.AccountID() {
		t.Error("account id not deterministic")
	}
	other, _ := RandomAccountKey()
	if key.AccountID() == other.AccountID() {
		t.Error("distinct keys derived the same account id")
	}
}

func TestPublicAddressRoundTrip(t *testing.T) {
	key, _ := RandomAccountKey()
	addr := key.Subaddress(MainSubaddressIndex)

	parsed, err := ParsePublicAddress(addr.Bytes())
	if err != nil {
		t.Fatalf("ParsePublicAddress: %v", err)
	}
	if !addr.Equal(parsed) {
		t.Error("address changed across serialize/parse")
	}

	if _, err := ParsePublicAddress([]byte("short")); err == nil {
		t.Error("expected error for truncated address")
	}
}

func TestMnemonicDeterministic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	if !ValidateMnemonic(mnemonic) {
		t.Fatal("generated mnemonic failed validation")
	}

	k1, err := AccountKeyFromMnemonic(mnemonic, 0)
	if err != nil {
		t.Fatalf("AccountKeyFromMnemonic: %v", err)
	}
	k2, err := AccountKeyFromMnemonic(mnemonic, 0)
	if err != nil {
		t.Fatalf("AccountKeyFromMnemonic: %v", err)
	}
	if k1.AccountID() != k2.AccountID() {
		t.Error("same mnemonic derived different accounts")
	}

	k3, err := AccountKeyFromMnemonic(mnemonic, 1)
	if err != nil {
		t.Fatalf("AccountKeyFromMnemonic(1): %v", err)
	}
	if k1.AccountID() == k3.AccountID() {
		t.Error("different account indexes derived the same account")
	}
}

func TestMnemonicRejectsGarbage(t *testing.T) {
	if ValidateMnemonic("not a real mnemonic phrase") {
		t.Error("garbage mnemonic validated")
	}
	if _, err := AccountKeyFromMnemonic("not a real mnemonic phrase", 0); err == nil {
		t.Error("expected error deriving key from garbage mnemonic")
	}
}
