package main

import (
	"context"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-errors/errors"
	"github.com/privacybydesign/zkgate"
	"github.com/privacybydesign/zkgate/internal/config"
	"github.com/privacybydesign/zkgate/ledger"
	"github.com/privacybydesign/zkgate/ledger/ethledger"
	"github.com/privacybydesign/zkgate/signed"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openAuthority connects to the ledger authority selected in the configuration.
func openAuthority(ctx context.Context, conf *config.Config, params *zkgate.DomainParameters) (ledger.Authority, io.Closer, error) {
	switch conf.Ledger.Backend {
	case config.BackendLocal:
		sk, err := signed.LoadOrGenerateKey(conf.Ledger.SigningKeyFile)
		if err != nil {
			return nil, nil, err
		}
		store, err := ledger.Open(conf.Ledger.Path, sk, params)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case config.BackendEthereum:
		if !common.IsHexAddress(conf.Ethereum.Contract) {
			return nil, nil, errors.Errorf("invalid contract address %q", conf.Ethereum.Contract)
		}
		key, err := crypto.HexToECDSA(conf.Ethereum.ManagerKey)
		if err != nil {
			return nil, nil, errors.WrapPrefix(err, "invalid ethereum.managerKey", 0)
		}
		client, err := ethledger.Dial(ctx, conf.Ethereum.URL, ethledger.Config{
			Contract:     common.HexToAddress(conf.Ethereum.Contract),
			ManagerKey:   key,
			GasLimit:     conf.Ethereum.GasLimit,
			PollInterval: conf.Ethereum.PollInterval,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nopCloser{}, nil
	}
	return nil, nil, errors.Errorf("unknown ledger backend %q", conf.Ledger.Backend)
}
