package cmd

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-bridge/core/backup"
	"github.com/AvaProtocol/aa-bridge/core/crosschain"
	"github.com/AvaProtocol/aa-bridge/model"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-bridge/storage"
)

type fakeReceipts struct {
	receipt *bundler.UserOperationReceipt
	err     error
}

func (f *fakeReceipts) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*bundler.UserOperationReceipt, error) {
	return f.receipt, f.err
}

func newTestJournal(t *testing.T) *crosschain.Journal {
	t.Helper()
	db, err := storage.New(&storage.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return crosschain.NewJournal(db)
}

func quantity(v int64) *bundler.Quantity {
	return (*bundler.Quantity)(big.NewInt(v))
}

var testUserOpHash = common.HexToHash("0x6c1c2f5bd3c0ad7bd76e0b8d2ad0b42cb05cf5c2ff1ac3a0c4f5b3b57a2a1e01")

func TestStatusCommand(t *testing.T) {
	tests := []struct {
		name           string
		record         bool
		receipts       *fakeReceipts
		expectedOutput []string
		expectError    bool
	}{
		{
			name:     "confirmed with journal record",
			record:   true,
			receipts: &fakeReceipts{receipt: &bundler.UserOperationReceipt{
				UserOpHash:    testUserOpHash,
				Sender:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
				Success:       true,
				ActualGasCost: quantity(21000),
				Receipt: bundler.TxReceipt{
					TransactionHash: common.HexToHash("0xabc"),
					BlockNumber:     quantity(4242),
				},
			}},
			expectedOutput: []string{
				"📊 User Operation " + testUserOpHash.Hex(),
				"Status: confirmed",
				"Deposit nonce: 43",
				"Success: true",
				"Block: 4242",
				"Actual gas cost: 21000 wei",
			},
		},
		{
			name:     "pending without journal record",
			receipts: &fakeReceipts{},
			expectedOutput: []string{
				"💾 Journal: no record",
				"Not included yet",
			},
		},
		{
			name:        "bundler unreachable",
			receipts:    &fakeReceipts{err: errors.New("connection refused")},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal := newTestJournal(t)
			if tt.record {
				r := model.NewTransferRecord(time.Now())
				r.UserOpHash = testUserOpHash.Hex()
				r.DepositNonce = 43
				r.Amount = "1000000000000000000"
				require.NoError(t, journal.Finish(r, model.TransferConfirmed, nil))
			}

			var buf bytes.Buffer
			err := printStatus(context.Background(), &buf, tt.receipts, journal, testUserOpHash.Hex())
			if tt.expectError {
				require.Error(t, err)
				assert.Equal(t, crosschain.ErrorCodeNetwork, crosschain.GetErrorCode(err))
				return
			}
			require.NoError(t, err)

			output := buf.String()
			for _, expected := range tt.expectedOutput {
				assert.Contains(t, output, expected, "Expected output to contain: %s", expected)
			}
		})
	}
}

func TestStatusRejectsMalformedHash(t *testing.T) {
	var buf bytes.Buffer
	err := printStatus(context.Background(), &buf, &fakeReceipts{}, newTestJournal(t), "0x1234")
	require.Error(t, err)
	assert.Equal(t, crosschain.ErrorCodeConfig, crosschain.GetErrorCode(err))
	assert.Empty(t, buf.String())
}

func TestStatusCommandHelp(t *testing.T) {
	assert.Equal(t, "status <userOpHash>", statusCmd.Use)
	assert.Equal(t, "Display the status of a user operation", statusCmd.Short)
	assert.Contains(t, statusCmd.Long, "eth_getUserOperationReceipt")
	assert.NotNil(t, statusCmd.RunE)
}

func TestPrintHistory(t *testing.T) {
	journal := newTestJournal(t)

	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, journal, 10))
	assert.Contains(t, buf.String(), "No transfers recorded")

	first := model.NewTransferRecord(time.UnixMilli(1700000000000))
	first.Amount = "1"
	require.NoError(t, journal.Finish(first, model.TransferFailed, errors.New("NETWORK_ERROR: boom")))

	second := model.NewTransferRecord(time.UnixMilli(1700000060000))
	second.Amount = "2"
	second.TxHash = "0xfeed"
	second.DepositNonce = 7
	require.NoError(t, journal.Finish(second, model.TransferConfirmed, nil))

	buf.Reset()
	require.NoError(t, printHistory(&buf, journal, 10))
	output := buf.String()

	assert.Less(t, bytes.Index(buf.Bytes(), []byte(second.ID)), bytes.Index(buf.Bytes(), []byte(first.ID)), "newest first")
	assert.Contains(t, output, "tx=0xfeed nonce=7")
	assert.Contains(t, output, `error="NETWORK_ERROR: boom"`)
	assert.Contains(t, output, "2 transfers recorded")
	assert.Contains(t, output, "confirmed: 1")
	assert.Contains(t, output, "failed: 1")
	assert.Contains(t, output, "reverted: 0")

	buf.Reset()
	require.NoError(t, printHistory(&buf, journal, 1))
	assert.NotContains(t, buf.String(), first.ID)
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "journal")

	db, err := storage.NewWithPath(src)
	require.NoError(t, err)
	r := model.NewTransferRecord(time.Now())
	require.NoError(t, crosschain.NewJournal(db).Finish(r, model.TransferConfirmed, nil))

	backupFile, err := backup.NewService(nil, db, filepath.Join(dir, "backup")).PerformBackup(context.Background())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	dst := filepath.Join(dir, "restored")
	require.NoError(t, performRestore(context.Background(), dst, backupFile))

	db, err = storage.NewWithPath(dst)
	require.NoError(t, err)
	defer db.Close()

	got, err := crosschain.NewJournal(db).Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferConfirmed, got.Status)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "0.1.0 (unknown)\n", buf.String())
}
