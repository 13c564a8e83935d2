package relayer_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/privacy"
	"github.com/dwarvesf/zenz-bridge/internal/utils/webhook"
)

type verifyOutcome struct {
	res chain.VerificationResult
	err error
}

// fakeVerifier answers from a table keyed by txid. Confirmed results are
// checked against the expectation the same way real verifiers do.
type fakeVerifier struct {
	mu      sync.Mutex
	chain   model.Chain
	results map[string]verifyOutcome
	calls   map[string]int
}

func newFakeVerifier(c model.Chain) *fakeVerifier {
	return &fakeVerifier{chain: c, results: map[string]verifyOutcome{}, calls: map[string]int{}}
}

func (f *fakeVerifier) Chain() model.Chain { return f.chain }

func (f *fakeVerifier) set(txID string, res chain.VerificationResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[txID] = verifyOutcome{res: res, err: err}
}

func (f *fakeVerifier) confirm(txID string, amount int64, destination string) {
	f.set(txID, chain.VerificationResult{
		Confirmed:         true,
		Confirmations:     6,
		ActualAmount:      amount,
		ActualDestination: destination,
	}, nil)
}

func (f *fakeVerifier) confirmWithdrawal(sig string, amount int64, payoutChain model.Chain, address, sender string) {
	f.set(sig, chain.VerificationResult{
		Confirmed:         true,
		Confirmations:     32,
		ActualAmount:      amount,
		ActualDestination: address,
		ActualSender:      sender,
		ActualAsset:       payoutChain,
	}, nil)
}

func (f *fakeVerifier) callCount(txID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[txID]
}

func (f *fakeVerifier) Verify(ctx context.Context, exp chain.Expectation) (chain.VerificationResult, error) {
	f.mu.Lock()
	f.calls[exp.TxID]++
	out, ok := f.results[exp.TxID]
	f.mu.Unlock()

	if !ok {
		return chain.VerificationResult{}, chain.ErrTransactionNotFound
	}
	if out.err != nil {
		return out.res, out.err
	}
	if out.res.Confirmed {
		if err := chain.CheckExpectation(exp, out.res); err != nil {
			return out.res, err
		}
	}
	return out.res, nil
}

// fakeBroadcaster remembers every transfer by ledger key, like a chain
// whose transactions carry the key.
type fakeBroadcaster struct {
	mu          sync.Mutex
	chain       model.Chain
	onChain     map[string]string
	sent        []chain.Transfer
	errs        []error
	onBroadcast func(t chain.Transfer)
}

func newFakeBroadcaster(c model.Chain) *fakeBroadcaster {
	return &fakeBroadcaster{chain: c, onChain: map[string]string{}}
}

func (f *fakeBroadcaster) Chain() model.Chain { return f.chain }

func (f *fakeBroadcaster) failNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

// land records a transfer as if an earlier broadcast had made it on chain.
func (f *fakeBroadcaster) land(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("%s-landed-%s", strings.ToLower(string(f.chain)), key)
	f.onChain[key] = id
	return id
}

func (f *fakeBroadcaster) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeBroadcaster) lastSent() chain.Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeBroadcaster) FindExisting(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.onChain[key]
	return id, ok, nil
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, t chain.Transfer) (string, error) {
	if f.onBroadcast != nil {
		f.onBroadcast(t)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	f.sent = append(f.sent, t)
	id := fmt.Sprintf("%s-tx-%d", strings.ToLower(string(f.chain)), len(f.sent))
	f.onChain[t.Key] = id
	return id, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []webhook.Alert
}

func (f *fakeAlerter) Notify(_ context.Context, a webhook.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

// prefixCipher "decrypts" values of the form enc:<plaintext>.
type prefixCipher struct{}

func (prefixCipher) Encrypt(_ context.Context, v string) (string, error) {
	return "enc:" + v, nil
}

func (prefixCipher) Decrypt(_ context.Context, v string) (string, error) {
	plain, ok := strings.CutPrefix(v, "enc:")
	if !ok {
		return "", errors.Join(privacy.ErrRejected, errors.New("not a ciphertext"))
	}
	return plain, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
