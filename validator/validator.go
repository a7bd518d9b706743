// Package validator evaluates signed NDN packets against a declarative
// trust policy: an ordered set of rules selects the packets it covers,
// and the certificate chain behind each signature is walked back to a
// configured trust anchor, bounded by a step limit.
package validator

import (
	"fmt"
	"sync"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"

	"github.com/named-data/ndn-validator/policy"
)

// FetchFunc retrieves a certificate by name. It is expected to resolve
// the callback exactly once, possibly on another goroutine; the
// validator performs no blocking I/O of its own.
type FetchFunc func(name enc.Name, config *ndn.InterestConfig, callback ndn.ExpressCallbackFunc)

// Options configures a Validator.
type Options struct {
	// Fetch retrieves certificates that are neither trust anchors nor
	// cached. Required.
	Fetch FetchFunc
	// StepLimit bounds the certificate chain walk of one top-level
	// validation across the whole call tree. Required; zero is legal
	// and fails every validation that needs chain recursion.
	StepLimit int
	// Cache memoizes validated certificates. Defaults to a TtlCertCache.
	Cache CertCache
	// CacheTtl caps how long a validated certificate is memoized.
	// Defaults to one hour.
	CacheTtl time.Duration
}

// Validator holds a loaded trust policy and validates packets against
// it. The policy may be swapped atomically with a new Load while
// validations are in flight.
type Validator struct {
	fetch     FetchFunc
	cache     CertCache
	stepLimit int
	cacheTtl  time.Duration

	mutex   sync.RWMutex
	rules   *policy.RuleSet
	anchors *policy.AnchorStore
}

// New constructs a Validator. The fetch function is a required
// dependency; its absence is a construction error, not a validation
// failure.
func New(opts Options) (*Validator, error) {
	if opts.Fetch == nil {
		return nil, fmt.Errorf("fetch function is not set")
	}
	if opts.StepLimit < 0 {
		return nil, fmt.Errorf("step limit must not be negative: %d", opts.StepLimit)
	}

	cacheTtl := opts.CacheTtl
	if cacheTtl == 0 {
		cacheTtl = time.Hour
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewTtlCertCache(cacheTtl)
	}

	return &Validator{
		fetch:     opts.Fetch,
		cache:     cache,
		stepLimit: opts.StepLimit,
		cacheTtl:  cacheTtl,
		rules:     policy.NewRuleSet(),
		anchors:   policy.NewAnchorStore(),
	}, nil
}

func (v *Validator) String() string {
	return "validator"
}

// LoadFile loads a policy configuration file. On error the previously
// installed rules and anchors stay untouched.
func (v *Validator) LoadFile(path string) error {
	cfg, err := policy.LoadFile(path)
	if err != nil {
		return err
	}
	v.install(cfg)
	return nil
}

// LoadBytes loads a policy document. dir resolves relative certificate
// paths inside it.
func (v *Validator) LoadBytes(src []byte, dir string) error {
	cfg, err := policy.LoadBytes(src, dir)
	if err != nil {
		return err
	}
	v.install(cfg)
	return nil
}

// LoadSection loads a pre-parsed section tree.
func (v *Validator) LoadSection(root *policy.Section, dir string) error {
	cfg, err := policy.Load(root, dir)
	if err != nil {
		return err
	}
	v.install(cfg)
	return nil
}

func (v *Validator) install(cfg *policy.Config) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.rules = cfg.Rules
	v.anchors = cfg.Anchors
}

func (v *Validator) snapshot() (*policy.RuleSet, *policy.AnchorStore) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()
	return v.rules, v.anchors
}

// ValidateData checks a Data packet against the policy. Exactly one of
// onSuccess and onFailure is invoked, possibly after asynchronous
// certificate fetches complete.
func (v *Validator) ValidateData(data ndn.Data, sigCovered enc.Wire, onSuccess func(), onFailure func(error)) {
	obj := signedObject{
		name:       data.Name(),
		packet:     data,
		sigCovered: sigCovered,
		signature:  data.Signature(),
	}
	v.validate(obj, policy.DataRule, 0, onSuccess, onFailure)
}

// ValidateInterest checks a signed Interest whose final two name
// components carry the signature envelope. The remaining prefix is the
// signed name used for rule matching.
func (v *Validator) ValidateInterest(interest ndn.Interest, onSuccess func(), onFailure func(error)) {
	obj, err := signedInterestObject(interest)
	if err != nil {
		onFailure(err)
		return
	}
	v.validate(obj, policy.InterestRule, 0, onSuccess, onFailure)
}

// validate runs one policy evaluation step and dispatches the
// certificate resolutions it spawned.
func (v *Validator) validate(obj signedObject, kind policy.RuleKind, step int, onSuccess func(), onFailure func(error)) {
	var nextSteps []*ValidationRequest
	v.checkPolicy(obj, kind, step, onSuccess, onFailure, &nextSteps)
	for _, req := range nextSteps {
		v.run(req)
	}
}

// checkPolicy classifies the packet under the first matching rule of
// its kind. The step bound is enforced before any rule work so that
// certificate loops cannot recurse forever.
func (v *Validator) checkPolicy(obj signedObject, kind policy.RuleKind, step int,
	onSuccess func(), onFailure func(error), nextSteps *[]*ValidationRequest) {

	if step >= v.stepLimit {
		onFailure(ErrMaxSteps)
		return
	}

	rules, _ := v.snapshot()
	rule := rules.FirstMatch(kind, obj.name)
	if rule == nil {
		onFailure(ErrNoRuleMatched)
		return
	}

	verdict := rule.Check(policy.CheckArgs{
		Name:       obj.name,
		Packet:     obj.packet,
		SigCovered: obj.sigCovered,
		Signature:  obj.signature,
		OnSuccess:  onSuccess,
		OnFailure:  onFailure,
	})

	// Fail and Pass verdicts already resolved the callbacks.
	if verdict == policy.VerdictContinue {
		v.checkSignature(obj, step, onSuccess, onFailure, nextSteps)
	}
}
