package zkgate

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/bwesterb/go-exptable"
	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate/big"
	"github.com/privacybydesign/zkgate/safeprime"
)

const (
	// primality test rounds used when validating parameters
	primalityRounds = 40

	// below this size a fixed-base table costs more than it saves
	tableThresholdBits = 256
	tableWindow        = 7
)

var bigOne = big.NewInt(1)

// DomainParameters are the public group parameters shared by prover and verifier:
// a prime modulus P and a base G of the multiplicative group Z_P*.
// Exponents are reduced modulo P-1.
type DomainParameters struct {
	P *big.Int `json:"p"`
	G *big.Int `json:"g"`

	groupOnce sync.Once
	group     *Group
}

// Group contains the values derived from DomainParameters that are used during
// exponentiation: the exponent modulus and, for cryptographic sizes, a fixed-base table for G.
type Group struct {
	P     *big.Int
	G     *big.Int
	Order *big.Int

	GTable   exptable.Table
	useTable bool
}

// NewDomainParameters returns the parameters (p, g). It does not validate them; see Validate.
func NewDomainParameters(p, g *big.Int) *DomainParameters {
	return &DomainParameters{
		P: new(big.Int).Set(p),
		G: new(big.Int).Set(g),
	}
}

// Validate checks that P is prime and that G lies in [2, P-2]. When P is a safe prime
// it additionally rejects bases whose square is 1, i.e. bases of order at most two.
func (dp *DomainParameters) Validate() error {
	if dp == nil || dp.P == nil || dp.G == nil {
		return errors.WrapPrefix(ErrInvalidParameters, "missing p or g", 0)
	}
	if dp.P.Cmp(big.NewInt(5)) < 0 || !dp.P.ProbablyPrime(primalityRounds) {
		return errors.WrapPrefix(ErrInvalidParameters, "p is not a prime larger than 3", 0)
	}
	pMinusOne := new(big.Int).Sub(dp.P, bigOne)
	if dp.G.Cmp(bigOne) <= 0 || dp.G.Cmp(pMinusOne) >= 0 {
		return errors.WrapPrefix(ErrInvalidParameters, "g not in [2, p-2]", 0)
	}
	if safeprime.ProbablySafePrime(dp.P, primalityRounds) {
		sq := new(big.Int).Exp(dp.G, big.NewInt(2), dp.P)
		if sq.Cmp(bigOne) == 0 {
			return errors.WrapPrefix(ErrInvalidParameters, "g has order at most 2", 0)
		}
	}
	return nil
}

// ValidateForDeployment runs Validate and additionally requires P to be at least
// MinimumParameterBits long. Toy parameters pass Validate but not this check.
func (dp *DomainParameters) ValidateForDeployment() error {
	if err := dp.Validate(); err != nil {
		return err
	}
	if dp.P.BitLen() < MinimumParameterBits {
		return errors.WrapPrefix(ErrInvalidParameters, "p is shorter than the deployment minimum", 0)
	}
	return nil
}

// Group returns the derived exponentiation group, computing it on first use.
func (dp *DomainParameters) Group() *Group {
	dp.groupOnce.Do(func() {
		dp.group = buildGroup(dp.P, dp.G)
	})
	return dp.group
}

func buildGroup(p, g *big.Int) *Group {
	result := &Group{
		P:     new(big.Int).Set(p),
		G:     new(big.Int).Set(g),
		Order: new(big.Int).Sub(p, bigOne),
	}
	if p.BitLen() >= tableThresholdBits {
		result.GTable.Compute(result.G.Go(), result.P.Go(), tableWindow)
		result.useTable = true
	}
	return result
}

// ExpG sets ret to G^exp mod P and returns ret. The exponent is reduced modulo P-1 first.
func (g *Group) ExpG(ret, exp *big.Int) *big.Int {
	e := new(big.Int).Mod(exp, g.Order)
	if !g.useTable {
		return ret.Exp(g.G, e, g.P)
	}
	g.GTable.Exp(ret.Go(), e.Go())
	return ret
}

// Exp sets ret to base^exp mod P and returns ret.
func (g *Group) Exp(ret, base, exp *big.Int) *big.Int {
	e := new(big.Int).Mod(exp, g.Order)
	return ret.Exp(base, e, g.P)
}

// InGroup reports whether x is an element of Z_P*, i.e. lies in [1, P-1].
func (g *Group) InGroup(x *big.Int) bool {
	return x != nil && x.Sign() > 0 && x.Cmp(g.P) < 0
}

// ParseParameters parses the JSON representation {"p": ..., "g": ...} and validates the result.
// Integers may be encoded as base64 strings or decimal numbers.
func ParseParameters(bts []byte) (*DomainParameters, error) {
	dp := new(DomainParameters)
	if err := json.Unmarshal(bts, dp); err != nil {
		return nil, errors.WrapPrefix(ErrInvalidParameters, err.Error(), 0)
	}
	if err := dp.Validate(); err != nil {
		return nil, err
	}
	return dp, nil
}

// LoadParameters reads and validates domain parameters from a JSON file.
func LoadParameters(filename string) (*DomainParameters, error) {
	bts, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.WrapPrefix(err, "could not read parameter file", 0)
	}
	return ParseParameters(bts)
}

// WriteToFile writes the JSON representation of the parameters to filename. When force is
// false an existing file is not overwritten.
func (dp *DomainParameters) WriteToFile(filename string, force bool) (int64, error) {
	bts, err := json.MarshalIndent(dp, "", "  ")
	if err != nil {
		return 0, err
	}

	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(filename, flags, 0644)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	n, err := f.Write(bts)
	return int64(n), err
}

// Equal reports whether both parameter sets describe the same group.
func (dp *DomainParameters) Equal(other *DomainParameters) bool {
	if dp == nil || other == nil {
		return dp == other
	}
	return dp.P.Cmp(other.P) == 0 && dp.G.Cmp(other.G) == 0
}
