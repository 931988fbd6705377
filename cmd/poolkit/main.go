package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gateway-fm/poolkit/internal/account"
	"github.com/gateway-fm/poolkit/internal/amm"
	"github.com/gateway-fm/poolkit/internal/chain"
	"github.com/gateway-fm/poolkit/internal/config"
	"github.com/gateway-fm/poolkit/internal/deploy"
	"github.com/gateway-fm/poolkit/internal/rpc"
	"github.com/gateway-fm/poolkit/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "poolkit",
		Short:        "Concentrated-liquidity pool deployment and trading toolkit",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", config.DefaultRPCURL, "JSON-RPC endpoint")
	root.PersistentFlags().String("private-key", "", "operator private key (hex)")
	root.PersistentFlags().Int64("chain-id", 0, "chain ID (0 = query the node)")
	root.PersistentFlags().Int64("gas-price", 0, "gas price in wei (0 = query the node)")
	root.PersistentFlags().Bool("legacy-tx", false, "use legacy (type 0) transactions")
	root.PersistentFlags().String("db", config.DefaultDatabasePath, "deployment database path")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")

	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy WETH9, factory, router, and position manager",
		RunE:  runDeploy,
	}
	deployCmd.Flags().String("artifacts", config.DefaultArtifactsDir, "directory with compiled contract artifacts")
	root.AddCommand(deployCmd)

	createPoolCmd := &cobra.Command{
		Use:   "create-pool",
		Short: "Create and initialize a pool for a token pair",
		RunE:  runCreatePool,
	}
	createPoolCmd.Flags().String("token-a", "", "first token address")
	createPoolCmd.Flags().String("token-b", "", "second token address")
	createPoolCmd.Flags().Uint32("fee", amm.FeeMedium, "fee tier in hundredths of a bip (500, 3000, 10000)")
	createPoolCmd.Flags().String("amount-a", "1", "amount of token A defining the starting price ratio")
	createPoolCmd.Flags().String("amount-b", "1", "amount of token B defining the starting price ratio")
	root.AddCommand(createPoolCmd)

	addLiquidityCmd := &cobra.Command{
		Use:   "add-liquidity",
		Short: "Mint a position around the pool's current tick",
		RunE:  runAddLiquidity,
	}
	addLiquidityCmd.Flags().String("token-a", "", "first token address")
	addLiquidityCmd.Flags().String("token-b", "", "second token address")
	addLiquidityCmd.Flags().Uint32("fee", amm.FeeMedium, "fee tier in hundredths of a bip")
	addLiquidityCmd.Flags().String("amount-a", "", "desired amount of token A (raw units)")
	addLiquidityCmd.Flags().String("amount-b", "", "desired amount of token B (raw units)")
	addLiquidityCmd.Flags().String("slippage", config.DefaultSlippage, "slippage tolerance as a fraction, e.g. 1/1000")
	addLiquidityCmd.Flags().Duration("deadline", config.DefaultDeadline, "transaction deadline offset")
	root.AddCommand(addLiquidityCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute an exact-input swap through the router",
		RunE:  runSwap,
	}
	swapCmd.Flags().String("token-in", "", "input token address")
	swapCmd.Flags().String("token-out", "", "output token address")
	swapCmd.Flags().Uint32("fee", amm.FeeMedium, "fee tier in hundredths of a bip")
	swapCmd.Flags().String("amount-in", "", "input amount (raw units)")
	swapCmd.Flags().String("recipient", "", "output recipient (defaults to the operator)")
	swapCmd.Flags().String("slippage", config.DefaultSlippage, "slippage tolerance as a fraction, e.g. 1/1000")
	swapCmd.Flags().Duration("deadline", config.DefaultDeadline, "transaction deadline offset")
	root.AddCommand(swapCmd)

	wrapCmd := &cobra.Command{
		Use:   "wrap",
		Short: "Wrap native currency into WETH9",
		RunE:  runWrap,
	}
	wrapCmd.Flags().String("amount", "", "amount to wrap in wei")
	root.AddCommand(wrapCmd)

	unwrapCmd := &cobra.Command{
		Use:   "unwrap",
		Short: "Withdraw WETH9 back to native currency",
		RunE:  runUnwrap,
	}
	unwrapCmd.Flags().String("amount", "", "amount to unwrap in wei")
	root.AddCommand(unwrapCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// env holds everything a command needs after configuration is resolved.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	client   rpc.Client
	operator *account.Account
	source   *chain.Source
	deployer *deploy.Deployer
	store    *store.Store
	chainID  *big.Int
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.logger != nil {
		e.logger.Sync()
	}
}

// setup loads configuration, connects the RPC client, and resolves chain
// ID and gas price from the node where they are not configured.
func setup(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	clientCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	clientCfg.Logger = logger
	client := rpc.NewHTTPClient(clientCfg)

	operator, err := account.NewAccountFromHex(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.GetChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("query chain ID: %w", err)
		}
	}

	gasPrice := big.NewInt(cfg.GasPrice)
	if cfg.GasPrice == 0 {
		price, err := client.GetGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("query gas price: %w", err)
		}
		gasPrice = new(big.Int).SetUint64(price)
	}

	if err := operator.Resync(ctx, client); err != nil {
		return nil, fmt.Errorf("sync operator nonce: %w", err)
	}

	source := chain.NewSource(client)
	deployer := deploy.NewDeployer(client, source, chainID, gasPrice, logger)
	if cfg.LegacyTx {
		deployer.SetUseLegacy(true)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open deployment database: %w", err)
	}

	block, err := client.GetBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("query block number: %w", err)
	}

	logger.Debug("environment ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("operator", operator.Address.Hex()),
		zap.Int64("chainID", chainID.Int64()),
		zap.String("gasPrice", gasPrice.String()),
		zap.Uint64("block", block),
	)

	return &env{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		operator: operator,
		source:   source,
		deployer: deployer,
		store:    st,
		chainID:  chainID,
	}, nil
}

// loadContracts reads the deployment set recorded for the current chain.
func (e *env) loadContracts(ctx context.Context) (*deploy.Contracts, error) {
	contracts, complete, err := e.store.LoadContracts(ctx, e.chainID.Int64())
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	if !complete {
		return nil, fmt.Errorf("no deployment recorded for chain %d, run deploy first", e.chainID.Int64())
	}
	return &contracts, nil
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	arts, err := deploy.LoadArtifacts(e.cfg.ArtifactsDir)
	if err != nil {
		return err
	}

	contracts, err := e.deployer.DeployAllWithProgress(ctx, e.operator, arts, func(name string, deployed, total int) {
		fmt.Printf("[%d/%d] %s\n", deployed, total, name)
	})
	if err != nil {
		return err
	}

	if err := e.store.SaveContracts(ctx, e.chainID.Int64(), *contracts); err != nil {
		return fmt.Errorf("record deployments: %w", err)
	}

	fmt.Printf("WETH9:                      %s\n", contracts.WETH9.Hex())
	fmt.Printf("UniswapV3Factory:           %s\n", contracts.Factory.Hex())
	fmt.Printf("SwapRouter:                 %s\n", contracts.SwapRouter.Hex())
	fmt.Printf("NonfungiblePositionManager: %s\n", contracts.PositionManager.Hex())
	return nil
}

func runCreatePool(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	tokenA, err := flagAddress(cmd, "token-a")
	if err != nil {
		return err
	}
	tokenB, err := flagAddress(cmd, "token-b")
	if err != nil {
		return err
	}
	fee, _ := cmd.Flags().GetUint32("fee")
	amountA, err := flagAmount(cmd, "amount-a")
	if err != nil {
		return err
	}
	amountB, err := flagAmount(cmd, "amount-b")
	if err != nil {
		return err
	}

	contracts, err := e.loadContracts(ctx)
	if err != nil {
		return err
	}

	// The price ratio is expressed in token0 and token1 order regardless
	// of which flag the caller put each token in.
	token0, _ := amm.SortTokens(tokenA, tokenB)
	amount0, amount1 := amountA, amountB
	if token0 != tokenA {
		amount0, amount1 = amountB, amountA
	}
	sqrtPrice, err := amm.EncodePriceRatio(amount1, amount0)
	if err != nil {
		return fmt.Errorf("encode starting price: %w", err)
	}

	pool, err := e.deployer.CreatePool(ctx, e.operator, contracts, tokenA, tokenB, fee, sqrtPrice)
	if err != nil {
		return err
	}

	fmt.Printf("pool: %s\n", pool.Hex())
	return nil
}

func runAddLiquidity(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	tokenA, err := flagAddress(cmd, "token-a")
	if err != nil {
		return err
	}
	tokenB, err := flagAddress(cmd, "token-b")
	if err != nil {
		return err
	}
	fee, _ := cmd.Flags().GetUint32("fee")
	amountA, err := flagAmount(cmd, "amount-a")
	if err != nil {
		return err
	}
	amountB, err := flagAmount(cmd, "amount-b")
	if err != nil {
		return err
	}
	tolerance, err := flagFraction(cmd, "slippage")
	if err != nil {
		return err
	}
	deadline, _ := cmd.Flags().GetDuration("deadline")

	contracts, err := e.loadContracts(ctx)
	if err != nil {
		return err
	}

	if err := e.logTokenPair(ctx, tokenA, tokenB); err != nil {
		return err
	}

	return e.deployer.AddLiquidity(ctx, e.operator, contracts, deploy.LiquidityRequest{
		TokenA:    tokenA,
		TokenB:    tokenB,
		Fee:       fee,
		AmountA:   amountA,
		AmountB:   amountB,
		Tolerance: tolerance,
		Deadline:  deadline,
	})
}

func runSwap(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	tokenIn, err := flagAddress(cmd, "token-in")
	if err != nil {
		return err
	}
	tokenOut, err := flagAddress(cmd, "token-out")
	if err != nil {
		return err
	}
	fee, _ := cmd.Flags().GetUint32("fee")
	amountIn, err := flagAmount(cmd, "amount-in")
	if err != nil {
		return err
	}
	tolerance, err := flagFraction(cmd, "slippage")
	if err != nil {
		return err
	}
	deadline, _ := cmd.Flags().GetDuration("deadline")

	recipient := e.operator.Address
	if raw, _ := cmd.Flags().GetString("recipient"); raw != "" {
		recipient, err = parseAddress(raw, "recipient")
		if err != nil {
			return err
		}
	}

	contracts, err := e.loadContracts(ctx)
	if err != nil {
		return err
	}

	if err := e.logTokenPair(ctx, tokenIn, tokenOut); err != nil {
		return err
	}

	req, err := amm.NewTradeRequest(tokenIn, tokenOut, amountIn, recipient, tolerance, deadline)
	if err != nil {
		return err
	}

	instruction, err := e.deployer.Swap(ctx, e.operator, contracts, fee, req)
	if err != nil {
		return err
	}

	fmt.Printf("amount in:    %s\n", instruction.AmountIn)
	fmt.Printf("expected out: %s\n", instruction.ExpectedOut)
	fmt.Printf("minimum out:  %s\n", instruction.MinimumOut)
	return nil
}

func runWrap(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	amount, err := flagAmount(cmd, "amount")
	if err != nil {
		return err
	}

	contracts, err := e.loadContracts(ctx)
	if err != nil {
		return err
	}

	return e.deployer.WrapETH(ctx, e.operator, contracts.WETH9, amount)
}

func runUnwrap(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	amount, err := flagAmount(cmd, "amount")
	if err != nil {
		return err
	}

	contracts, err := e.loadContracts(ctx)
	if err != nil {
		return err
	}

	return e.deployer.UnwrapWETH(ctx, e.operator, contracts.WETH9, amount)
}

// logTokenPair queries ERC-20 metadata for both tokens so operator logs
// name the assets, not just their addresses.
func (e *env) logTokenPair(ctx context.Context, a, b common.Address) error {
	for _, addr := range []common.Address{a, b} {
		token, err := e.source.TokenMetadata(ctx, addr, e.chainID.Int64())
		if err != nil {
			return fmt.Errorf("query token %s: %w", addr.Hex(), err)
		}
		e.logger.Info("token",
			zap.String("address", token.Address.Hex()),
			zap.String("symbol", token.Symbol),
			zap.Uint8("decimals", token.Decimals),
		)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func flagAddress(cmd *cobra.Command, name string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	return parseAddress(raw, name)
}

func parseAddress(raw, name string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, fmt.Errorf("--%s is required", name)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("--%s: %q is not a valid address", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func flagAmount(cmd *cobra.Command, name string) (*big.Int, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("--%s: %q is not a positive integer", name, raw)
	}
	return amount, nil
}

func flagFraction(cmd *cobra.Command, name string) (amm.Fraction, error) {
	raw, _ := cmd.Flags().GetString(name)
	f, err := amm.ParseFraction(raw)
	if err != nil {
		return amm.Fraction{}, fmt.Errorf("--%s: %w", name, err)
	}
	return f, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
