package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

const aggregatorABIJSON = `[
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[
    {"internalType":"uint8","name":"","type":"uint8"}],
   "stateMutability":"view","type":"function"}]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain price feed adapter.
type ChainlinkOptions struct {
	RPCURL  string
	Feeds   map[string]string // pair symbol -> aggregator contract address
	Timeout time.Duration
}

// Chainlink reads price feed aggregators over Ethereum RPC. It serves
// as the secondary price source for pairs with a configured feed.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	decimalsMux sync.Mutex
	decimals    map[string]int32
}

// NewChainlink builds the on-chain adapter.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{
		opts:     opts,
		logger:   logger.With().Str("component", "chainlink_source").Logger(),
		decimals: make(map[string]int32),
	}
}

func (c *Chainlink) Name() string { return "chainlink" }

func (c *Chainlink) Supports(class market.MetricClass) bool {
	return class == market.ClassPrice
}

func (c *Chainlink) Retry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, InitialInterval: time.Second}
}

// Fetch resolves the latest answer of the pair's aggregator. Pairs
// without a configured feed report not-found so the chain falls through.
func (c *Chainlink) Fetch(ctx context.Context, req market.Request) (market.FetchResult, error) {
	if c.opts.RPCURL == "" {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindNotFound,
			errors.New("rpc url not configured"))
	}

	feed, ok := c.opts.Feeds[req.Symbol]
	if !ok {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindNotFound,
			fmt.Errorf("no feed configured for %s", req.Symbol))
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindTransport, err)
	}

	addr := common.HexToAddress(feed)

	scale, err := c.feedDecimals(ctx, client, addr, feed)
	if err != nil {
		return market.FetchResult{}, err
	}

	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindBadPayload, err)
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindTransport, err)
	}

	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindBadPayload, err)
	}
	if len(outputs) != 5 {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindBadPayload,
			errors.New("unexpected latestRoundData response"))
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return market.FetchResult{}, market.NewFetchError(c.Name(), market.KindBadPayload,
			errors.New("feed answer missing or non-positive"))
	}

	value := decimal.NewFromBigInt(answer, -scale)

	return market.FetchResult{
		Request:   req,
		Origin:    c.Name(),
		Values:    map[string]decimal.Decimal{market.FieldValue: value},
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address, feed string) (int32, error) {
	c.decimalsMux.Lock()
	cached, ok := c.decimals[feed]
	c.decimalsMux.Unlock()
	if ok {
		return cached, nil
	}

	payload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, market.NewFetchError(c.Name(), market.KindBadPayload, err)
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return 0, market.NewFetchError(c.Name(), market.KindTransport, err)
	}
	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil || len(outputs) != 1 {
		return 0, market.NewFetchError(c.Name(), market.KindBadPayload,
			errors.New("failed to decode feed decimals"))
	}
	dec, ok := outputs[0].(uint8)
	if !ok {
		return 0, market.NewFetchError(c.Name(), market.KindBadPayload,
			errors.New("unexpected decimals output type"))
	}

	c.decimalsMux.Lock()
	c.decimals[feed] = int32(dec)
	c.decimalsMux.Unlock()
	return int32(dec), nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ Adapter = (*Chainlink)(nil)
