// Package deploy orchestrates contract deployment and the on-chain
// operations built on top of it: pool bootstrap, liquidity provisioning,
// and swap submission.
package deploy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/gateway-fm/poolkit/internal/account"
	"github.com/gateway-fm/poolkit/internal/amm"
	"github.com/gateway-fm/poolkit/internal/chain"
	"github.com/gateway-fm/poolkit/internal/rpc"
)

// Gas limits. Deployments and pool operations create contracts or touch
// many storage slots; plain calls get the smaller limit.
const (
	gasLimitCall   = 500_000
	gasLimitHeavy  = 8_000_000
	receiptTimeout = 60 * time.Second
)

// Contracts holds the addresses of the deployed protocol contracts.
type Contracts struct {
	WETH9           common.Address
	Factory         common.Address
	SwapRouter      common.Address
	PositionManager common.Address
}

// ProgressCallback is called after each contract deployment or skip.
type ProgressCallback func(contractName string, deployed, total int)

// Deployer drives transactions against the chain: contract creation,
// pool setup, approvals, mints, and swaps. All operations are sequential
// and wait for receipts.
type Deployer struct {
	client    rpc.Client
	source    *chain.Source
	chainID   *big.Int
	gasPrice  *big.Int
	useLegacy bool // Use legacy (type 0) transactions instead of EIP-1559
	logger    *zap.Logger
}

// NewDeployer creates a Deployer.
func NewDeployer(client rpc.Client, source *chain.Source, chainID, gasPrice *big.Int, logger *zap.Logger) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deployer{
		client:   client,
		source:   source,
		chainID:  chainID,
		gasPrice: gasPrice,
		logger:   logger,
	}
}

// SetUseLegacy switches the deployer to legacy (type 0) transactions for
// chains without EIP-1559.
func (d *Deployer) SetUseLegacy(useLegacy bool) {
	d.useLegacy = useLegacy
}

// DeployAll deploys the protocol contracts in constructor dependency
// order and returns their addresses.
func (d *Deployer) DeployAll(ctx context.Context, operator *account.Account, arts *Artifacts) (*Contracts, error) {
	return d.DeployAllWithProgress(ctx, operator, arts, nil)
}

// DeployAllWithProgress deploys all contracts with progress reporting.
// Order matters: SwapRouter and NonfungiblePositionManager take the
// factory and WETH9 addresses as constructor arguments.
func (d *Deployer) DeployAllWithProgress(ctx context.Context, operator *account.Account, arts *Artifacts, onProgress ProgressCallback) (*Contracts, error) {
	contracts := &Contracts{}
	total := len(deployOrder)

	if err := operator.Resync(ctx, d.client); err != nil {
		return nil, fmt.Errorf("resync nonce: %w", err)
	}
	startNonce := operator.PeekNonce()

	processed := 0

	// If a previous run already put code at the expected CREATE address,
	// the step is skipped instead of redeployed.
	deployOrSkip := func(name string, bytecode []byte, nonceOffset uint64) (common.Address, error) {
		expectedAddr := amm.ComputeContractAddress(operator.Address, startNonce+nonceOffset)

		exists, err := d.source.PoolExists(ctx, expectedAddr)
		if err != nil {
			d.logger.Warn("failed to check contract existence, will deploy",
				zap.String("name", name),
				zap.Error(err),
			)
		} else if exists {
			d.logger.Info("contract already deployed, skipping",
				zap.String("name", name),
				zap.String("address", expectedAddr.Hex()),
			)
			processed++
			if onProgress != nil {
				onProgress(name, processed, total)
			}
			return expectedAddr, nil
		}

		if err := operator.Resync(ctx, d.client); err != nil {
			return common.Address{}, fmt.Errorf("resync nonce: %w", err)
		}

		addr, err := d.deployContract(ctx, operator, name, bytecode)
		if err != nil {
			return common.Address{}, err
		}

		processed++
		if onProgress != nil {
			onProgress(name, processed, total)
		}
		return addr, nil
	}

	wethCode, err := arts.Bytecode(ContractWETH9)
	if err != nil {
		return nil, err
	}
	contracts.WETH9, err = deployOrSkip(ContractWETH9, wethCode, 0)
	if err != nil {
		return nil, fmt.Errorf("deploy WETH9: %w", err)
	}

	factoryCode, err := arts.Bytecode(ContractFactory)
	if err != nil {
		return nil, err
	}
	contracts.Factory, err = deployOrSkip(ContractFactory, factoryCode, 1)
	if err != nil {
		return nil, fmt.Errorf("deploy factory: %w", err)
	}

	routerCode, err := arts.Bytecode(ContractSwapRouter)
	if err != nil {
		return nil, err
	}
	routerCode = appendConstructorArgs(routerCode, contracts.Factory, contracts.WETH9)
	contracts.SwapRouter, err = deployOrSkip(ContractSwapRouter, routerCode, 2)
	if err != nil {
		return nil, fmt.Errorf("deploy swap router: %w", err)
	}

	managerCode, err := arts.Bytecode(ContractPositionManager)
	if err != nil {
		return nil, err
	}
	// Third constructor arg is the token descriptor, unused here.
	managerCode = appendConstructorArgs(managerCode, contracts.Factory, contracts.WETH9, common.Address{})
	contracts.PositionManager, err = deployOrSkip(ContractPositionManager, managerCode, 3)
	if err != nil {
		return nil, fmt.Errorf("deploy position manager: %w", err)
	}

	d.logger.Info("all protocol contracts deployed",
		zap.String("weth9", contracts.WETH9.Hex()),
		zap.String("factory", contracts.Factory.Hex()),
		zap.String("swapRouter", contracts.SwapRouter.Hex()),
		zap.String("positionManager", contracts.PositionManager.Hex()),
	)

	return contracts, nil
}

// CreatePool creates and initializes a pool for the token pair at the
// given fee tier and starting price, via the position manager's
// createAndInitializePoolIfNecessary. Returns the pool address resolved
// from the factory. Idempotent: an existing initialized pool is left
// untouched by the contract.
func (d *Deployer) CreatePool(ctx context.Context, operator *account.Account, contracts *Contracts, tokenA, tokenB common.Address, fee uint32, sqrtPriceX96 *big.Int) (common.Address, error) {
	if _, err := amm.SpacingFor(fee); err != nil {
		return common.Address{}, err
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return common.Address{}, fmt.Errorf("initial sqrt price must be positive, got %v", sqrtPriceX96)
	}

	token0, token1 := amm.SortTokens(tokenA, tokenB)
	d.logger.Info("creating pool",
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Uint32("fee", fee),
		zap.String("sqrtPriceX96", sqrtPriceX96.String()),
	)

	data := amm.EncodeCreateAndInitializePool(token0, token1, fee, sqrtPriceX96)
	if err := d.sendTxAndWait(ctx, operator, contracts.PositionManager, data, nil, gasLimitHeavy, "createPool"); err != nil {
		return common.Address{}, fmt.Errorf("create pool: %w", err)
	}

	// Resolve from the factory rather than computing: a locally compiled
	// pool init code hash can differ from the canonical one.
	pool, err := d.source.ResolvePool(ctx, contracts.Factory, token0, token1, fee)
	if err != nil {
		return common.Address{}, err
	}

	exists, err := d.source.PoolExists(ctx, pool)
	if err != nil {
		return common.Address{}, fmt.Errorf("verify pool code: %w", err)
	}
	if !exists {
		return common.Address{}, fmt.Errorf("%w: factory reports %s but no code present", amm.ErrPoolNotFound, pool.Hex())
	}

	d.logger.Info("pool ready", zap.String("pool", pool.Hex()))
	return pool, nil
}

// LiquidityRequest describes a position to mint.
type LiquidityRequest struct {
	TokenA    common.Address
	TokenB    common.Address
	Fee       uint32
	AmountA   *big.Int
	AmountB   *big.Int
	Tolerance amm.Fraction
	Deadline  time.Duration // offset from now; 10 minutes if zero
}

// AddLiquidity mints a position one spacing wide around the pool's
// current tick. Both tokens are approved to the position manager and the
// approvals are confirmed before the mint is submitted.
func (d *Deployer) AddLiquidity(ctx context.Context, operator *account.Account, contracts *Contracts, req LiquidityRequest) error {
	spacing, err := amm.SpacingFor(req.Fee)
	if err != nil {
		return err
	}
	if req.Tolerance == (amm.Fraction{}) {
		req.Tolerance = amm.DefaultSlippage
	}
	if req.Deadline <= 0 {
		req.Deadline = 10 * time.Minute
	}

	token0, token1 := amm.SortTokens(req.TokenA, req.TokenB)
	amount0, amount1 := req.AmountA, req.AmountB
	if token0 != req.TokenA {
		amount0, amount1 = req.AmountB, req.AmountA
	}

	if err := d.checkTokenBalance(ctx, operator, token0, amount0); err != nil {
		return err
	}
	if err := d.checkTokenBalance(ctx, operator, token1, amount1); err != nil {
		return err
	}

	pool, err := d.source.ResolvePool(ctx, contracts.Factory, token0, token1, req.Fee)
	if err != nil {
		return err
	}

	_, tick, err := d.source.Slot0(ctx, pool)
	if err != nil {
		return fmt.Errorf("query pool tick: %w", err)
	}

	r, err := amm.RangeAround(tick, spacing)
	if err != nil {
		return err
	}

	d.logger.Info("minting position",
		zap.String("pool", pool.Hex()),
		zap.Int("currentTick", tick),
		zap.Int("tickLower", r.Lower),
		zap.Int("tickUpper", r.Upper),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)

	// Approvals must be confirmed before the mint can pull funds.
	for _, tok := range []common.Address{token0, token1} {
		if err := d.approveIfNeeded(ctx, operator, tok, contracts.PositionManager); err != nil {
			return err
		}
	}

	deadline := big.NewInt(time.Now().Add(req.Deadline).Unix())
	params, err := amm.NewMintParams(token0, token1, req.Fee, r, amount0, amount1, req.Tolerance, operator.Address, deadline)
	if err != nil {
		return err
	}

	if err := d.sendTxAndWait(ctx, operator, contracts.PositionManager, amm.EncodeMintPosition(params), nil, gasLimitHeavy, "mint"); err != nil {
		return fmt.Errorf("mint position: %w", err)
	}

	d.logger.Info("position minted",
		zap.String("pool", pool.Hex()),
		zap.Int("tickLower", r.Lower),
		zap.Int("tickUpper", r.Upper),
	)
	return nil
}

// Swap builds an exact-input swap against the live pool state and
// submits it to the router. The input token is approved to the router
// and the approval confirmed before the swap transaction.
func (d *Deployer) Swap(ctx context.Context, operator *account.Account, contracts *Contracts, fee uint32, req amm.TradeRequest) (*amm.SwapInstruction, error) {
	token0, token1 := amm.SortTokens(req.InputToken, req.OutputToken)

	if err := d.checkTokenBalance(ctx, operator, req.InputToken, req.AmountIn); err != nil {
		return nil, err
	}

	pool, err := d.source.ResolvePool(ctx, contracts.Factory, token0, token1, fee)
	if err != nil {
		return nil, err
	}

	snap, err := amm.FetchSnapshot(ctx, d.source, amm.PoolIdentity{
		Address: pool,
		Token0:  token0,
		Token1:  token1,
		Fee:     fee,
	})
	if err != nil {
		return nil, err
	}

	instruction, err := amm.BuildTrade(snap, req)
	if err != nil {
		return nil, err
	}

	d.logger.Info("swap built",
		zap.String("pool", pool.Hex()),
		zap.String("amountIn", instruction.AmountIn.String()),
		zap.String("expectedOut", instruction.ExpectedOut.String()),
		zap.String("minimumOut", instruction.MinimumOut.String()),
		zap.Bool("zeroForOne", instruction.ZeroForOne),
	)

	if err := d.approveIfNeeded(ctx, operator, req.InputToken, contracts.SwapRouter); err != nil {
		return nil, err
	}

	if err := d.sendTxAndWait(ctx, operator, contracts.SwapRouter, instruction.Calldata, nil, gasLimitHeavy, "swap"); err != nil {
		return nil, fmt.Errorf("execute swap: %w", err)
	}

	d.logger.Info("swap executed", zap.String("pool", pool.Hex()))
	return instruction, nil
}

// WrapETH deposits native currency into the WETH9 contract.
func (d *Deployer) WrapETH(ctx context.Context, operator *account.Account, weth9 common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("wrap amount must be positive, got %v", amount)
	}

	balance, err := d.client.GetBalance(ctx, operator.Address.Hex())
	if err != nil {
		return fmt.Errorf("query native balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient native balance: have %s, need %s", balance, amount)
	}

	d.logger.Info("wrapping ETH",
		zap.String("weth9", weth9.Hex()),
		zap.String("amount", amount.String()),
	)
	if err := d.sendTxAndWait(ctx, operator, weth9, amm.EncodeDeposit(), amount, gasLimitCall, "wrapETH"); err != nil {
		return fmt.Errorf("wrap ETH: %w", err)
	}
	return nil
}

// UnwrapWETH withdraws wrapped currency from WETH9 back to native.
func (d *Deployer) UnwrapWETH(ctx context.Context, operator *account.Account, weth9 common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("unwrap amount must be positive, got %v", amount)
	}
	if err := d.checkTokenBalance(ctx, operator, weth9, amount); err != nil {
		return err
	}

	d.logger.Info("unwrapping WETH",
		zap.String("weth9", weth9.Hex()),
		zap.String("amount", amount.String()),
	)
	if err := d.sendTxAndWait(ctx, operator, weth9, amm.EncodeWithdraw(amount), nil, gasLimitCall, "unwrapETH"); err != nil {
		return fmt.Errorf("unwrap WETH: %w", err)
	}
	return nil
}

// checkTokenBalance fails fast when the operator's ERC-20 balance cannot
// fund the amount. A nil or non-positive amount passes through; those are
// rejected by the downstream parameter validation.
func (d *Deployer) checkTokenBalance(ctx context.Context, operator *account.Account, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	balance, err := d.source.BalanceOf(ctx, token, operator.Address)
	if err != nil {
		return fmt.Errorf("query balance of %s: %w", token.Hex(), err)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s: have %s, need %s", token.Hex(), balance, amount)
	}
	return nil
}

// approveIfNeeded grants the spender an unlimited allowance unless one is
// already in place, and waits for the approval to confirm.
func (d *Deployer) approveIfNeeded(ctx context.Context, operator *account.Account, token, spender common.Address) error {
	allowance, err := d.source.Allowance(ctx, token, operator.Address, spender)
	if err != nil {
		return fmt.Errorf("query allowance: %w", err)
	}
	// Half of MaxUint256 is effectively unlimited.
	if allowance.Cmp(new(big.Int).Rsh(amm.MaxUint256, 1)) > 0 {
		return nil
	}

	d.logger.Info("approving token",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
	)
	data := amm.EncodeApprove(spender, amm.MaxUint256)
	if err := d.sendTxAndWait(ctx, operator, token, data, nil, gasLimitCall, "approve"); err != nil {
		return fmt.Errorf("approve %s for %s: %w", token.Hex(), spender.Hex(), err)
	}
	return nil
}

// deployContract sends a contract creation transaction and waits for
// code to appear at the computed address. The nonce comes from the
// operator's counter and is returned on a failed send.
func (d *Deployer) deployContract(ctx context.Context, operator *account.Account, name string, bytecode []byte) (common.Address, error) {
	nonce := operator.NextNonce()
	contractAddr := amm.ComputeContractAddress(operator.Address, nonce)

	tx := d.buildTx(nonce, nil, big.NewInt(0), bytecode, gasLimitHeavy)
	signedTx, err := d.signAndSend(ctx, operator, tx)
	if err != nil {
		operator.Rollback(nonce)
		return common.Address{}, fmt.Errorf("send deployment tx: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	d.logger.Info("deploying contract",
		zap.String("name", name),
		zap.String("expected", contractAddr.Hex()),
		zap.String("txHash", txHash),
		zap.Int("bytecodeLen", len(bytecode)),
	)

	return d.waitForDeployment(ctx, name, contractAddr, txHash)
}

// buildTx constructs a legacy or dynamic-fee transaction per the
// deployer's mode. A nil to address creates a contract.
func (d *Deployer) buildTx(nonce uint64, to *common.Address, value *big.Int, data []byte, gasLimit uint64) *types.Transaction {
	if d.useLegacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: d.gasPrice,
			Gas:      gasLimit,
			To:       to,
			Value:    value,
			Data:     data,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   d.chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(0),
		GasFeeCap: d.gasPrice,
		Gas:       gasLimit,
		To:        to,
		Value:     value,
		Data:      data,
	})
}

// signAndSend signs a transaction and submits it.
func (d *Deployer) signAndSend(ctx context.Context, operator *account.Account, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(d.chainID)
	signedTx, err := types.SignTx(tx, signer, operator.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	rlp, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal tx: %w", err)
	}

	if err := d.client.SendRawTransaction(ctx, rlp); err != nil {
		return nil, fmt.Errorf("send raw tx: %w", err)
	}

	return signedTx, nil
}

// sendTxAndWait sends a transaction with the operator's next nonce and
// waits for its receipt, failing on status 0. The counter is resynced
// from the chain first and rolled back on a failed send.
func (d *Deployer) sendTxAndWait(ctx context.Context, operator *account.Account, to common.Address, data []byte, value *big.Int, gasLimit uint64, name string) error {
	if value == nil {
		value = big.NewInt(0)
	}

	if err := operator.Resync(ctx, d.client); err != nil {
		return fmt.Errorf("resync nonce: %w", err)
	}
	nonce := operator.NextNonce()

	tx := d.buildTx(nonce, &to, value, data, gasLimit)
	signedTx, err := d.signAndSend(ctx, operator, tx)
	if err != nil {
		operator.Rollback(nonce)
		return err
	}

	txHash := signedTx.Hash().Hex()

	timeout := time.After(receiptTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for %s tx receipt (txHash: %s)", name, txHash)
		case <-ticker.C:
			receipt, err := d.client.GetTransactionReceipt(ctx, txHash)
			if err != nil {
				continue
			}
			if receipt != nil {
				if receipt.Status == 0 {
					return fmt.Errorf("%s tx failed (status=0, gasUsed=%d, txHash=%s)", name, receipt.GasUsed, txHash)
				}
				d.logger.Debug("tx confirmed",
					zap.String("name", name),
					zap.String("txHash", txHash),
					zap.Uint64("gasUsed", receipt.GasUsed),
				)
				return nil
			}
		}
	}
}

// waitForDeployment polls for the deployment receipt and then for code
// at the expected address.
func (d *Deployer) waitForDeployment(ctx context.Context, name string, addr common.Address, txHash string) (common.Address, error) {
	timeout := time.After(receiptTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return common.Address{}, ctx.Err()
		case <-timeout:
			return common.Address{}, fmt.Errorf("timeout waiting for %s deployment at %s (txHash: %s)", name, addr.Hex(), txHash)
		case <-ticker.C:
			receipt, err := d.client.GetTransactionReceipt(ctx, txHash)
			if err != nil {
				d.logger.Debug("error getting receipt", zap.Error(err))
				continue
			}
			if receipt == nil {
				continue
			}
			if receipt.Status == 0 {
				return common.Address{}, fmt.Errorf("%s deployment tx failed (status=0, gasUsed=%d, txHash=%s)", name, receipt.GasUsed, txHash)
			}
			exists, err := d.source.PoolExists(ctx, addr)
			if err != nil {
				d.logger.Debug("error getting code", zap.Error(err))
				continue
			}
			if exists {
				d.logger.Info("contract deployed",
					zap.String("name", name),
					zap.String("address", addr.Hex()),
					zap.Uint64("gasUsed", receipt.GasUsed),
				)
				return addr, nil
			}
		}
	}
}
