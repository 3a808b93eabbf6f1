package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// tokenABIJSON covers the reputation token surface the core touches:
// ERC-20 reads, the faucet, and the allowance grant for the DAO.
const tokenABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"canClaimFromFaucet","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"getTimeUntilNextClaim","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"claimFromFaucet","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// daoABIJSON covers the voting contract surface.
const daoABIJSON = `[
	{"name":"voteForCreator","type":"function","stateMutability":"nonpayable","inputs":[{"name":"creator","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"getCreatorVotes","type":"function","stateMutability":"view","inputs":[{"name":"creator","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// nftABIJSON covers the profile NFT contract surface.
const nftABIJSON = `[
	{"name":"mintProfile","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenURI","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"hasMinted","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

// transferTopic is the ERC-721 Transfer(address,address,uint256) event
// signature; a mint emits it with the zero address as sender and the token
// id as the third indexed topic.
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// weiPerToken is the 18-decimal base-unit scale. The core works in whole
// tokens; conversion happens only at this boundary.
var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// TokensToWei converts a whole-token amount to base units.
func TokensToWei(tokens uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(tokens), weiPerToken)
}

// WeiToTokens converts base units to whole tokens, truncating dust.
func WeiToTokens(wei *big.Int) uint64 {
	if wei == nil || wei.Sign() <= 0 {
		return 0
	}
	tokens := new(big.Int).Div(wei, weiPerToken)
	if !tokens.IsUint64() {
		return ^uint64(0)
	}
	return tokens.Uint64()
}

// Contracts holds the deployed addresses and parsed ABIs for the token,
// voting and profile NFT contracts, and packs/unpacks all calls the core
// makes.
type Contracts struct {
	Token common.Address
	DAO   common.Address
	NFT   common.Address

	tokenABI abi.ABI
	daoABI   abi.ABI
	nftABI   abi.ABI
}

// NewContracts parses the embedded ABIs for the given deployments.
func NewContracts(token, dao, nft common.Address) (*Contracts, error) {
	tokenABI, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	daoABI, err := abi.JSON(strings.NewReader(daoABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse dao abi: %w", err)
	}
	nftABI, err := abi.JSON(strings.NewReader(nftABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse nft abi: %w", err)
	}
	return &Contracts{Token: token, DAO: dao, NFT: nft, tokenABI: tokenABI, daoABI: daoABI, nftABI: nftABI}, nil
}

// PackBalanceOf encodes balanceOf(account).
func (c *Contracts) PackBalanceOf(account common.Address) ([]byte, error) {
	return c.tokenABI.Pack("balanceOf", account)
}

// UnpackBalanceOf decodes a balanceOf result into base units.
func (c *Contracts) UnpackBalanceOf(data []byte) (*big.Int, error) {
	return c.unpackUint256(c.tokenABI, "balanceOf", data)
}

// PackAllowance encodes allowance(owner, spender).
func (c *Contracts) PackAllowance(owner, spender common.Address) ([]byte, error) {
	return c.tokenABI.Pack("allowance", owner, spender)
}

// UnpackAllowance decodes an allowance result into base units.
func (c *Contracts) UnpackAllowance(data []byte) (*big.Int, error) {
	return c.unpackUint256(c.tokenABI, "allowance", data)
}

// PackCanClaim encodes canClaimFromFaucet(user).
func (c *Contracts) PackCanClaim(user common.Address) ([]byte, error) {
	return c.tokenABI.Pack("canClaimFromFaucet", user)
}

// UnpackCanClaim decodes a canClaimFromFaucet result.
func (c *Contracts) UnpackCanClaim(data []byte) (bool, error) {
	return c.unpackBool(c.tokenABI, "canClaimFromFaucet", data)
}

// PackTimeUntilNextClaim encodes getTimeUntilNextClaim(user).
func (c *Contracts) PackTimeUntilNextClaim(user common.Address) ([]byte, error) {
	return c.tokenABI.Pack("getTimeUntilNextClaim", user)
}

// UnpackTimeUntilNextClaim decodes the remaining cooldown in seconds.
func (c *Contracts) UnpackTimeUntilNextClaim(data []byte) (int64, error) {
	v, err := c.unpackUint256(c.tokenABI, "getTimeUntilNextClaim", data)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("cooldown out of range: %s", v)
	}
	return v.Int64(), nil
}

// PackClaim encodes claimFromFaucet().
func (c *Contracts) PackClaim() ([]byte, error) {
	return c.tokenABI.Pack("claimFromFaucet")
}

// PackApprove encodes approve(spender, amount).
func (c *Contracts) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return c.tokenABI.Pack("approve", spender, amount)
}

// PackVoteForCreator encodes voteForCreator(creator, amount).
func (c *Contracts) PackVoteForCreator(creator common.Address, amount *big.Int) ([]byte, error) {
	return c.daoABI.Pack("voteForCreator", creator, amount)
}

// PackGetCreatorVotes encodes getCreatorVotes(creator).
func (c *Contracts) PackGetCreatorVotes(creator common.Address) ([]byte, error) {
	return c.daoABI.Pack("getCreatorVotes", creator)
}

// UnpackGetCreatorVotes decodes the on-chain vote tally in base units.
func (c *Contracts) UnpackGetCreatorVotes(data []byte) (*big.Int, error) {
	return c.unpackUint256(c.daoABI, "getCreatorVotes", data)
}

// PackMintProfile encodes mintProfile(to, tokenURI).
func (c *Contracts) PackMintProfile(to common.Address, tokenURI string) ([]byte, error) {
	return c.nftABI.Pack("mintProfile", to, tokenURI)
}

// PackHasMinted encodes hasMinted(user).
func (c *Contracts) PackHasMinted(user common.Address) ([]byte, error) {
	return c.nftABI.Pack("hasMinted", user)
}

// UnpackHasMinted decodes a hasMinted result.
func (c *Contracts) UnpackHasMinted(data []byte) (bool, error) {
	return c.unpackBool(c.nftABI, "hasMinted", data)
}

// MintedTokenID extracts the token id from a mint receipt's logs: the NFT
// contract's Transfer event from the zero address carries it as the third
// indexed topic. ok is false when no such event is present.
func (c *Contracts) MintedTokenID(logs []Log) (int64, bool) {
	for _, log := range logs {
		if log.Address != c.NFT || len(log.Topics) != 4 {
			continue
		}
		if log.Topics[0] != transferTopic || log.Topics[1] != (common.Hash{}) {
			continue
		}
		id := new(big.Int).SetBytes(log.Topics[3].Bytes())
		if !id.IsInt64() {
			return 0, false
		}
		return id.Int64(), true
	}
	return 0, false
}

func (c *Contracts) unpackUint256(a abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := a.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

func (c *Contracts) unpackBool(a abi.ABI, method string, data []byte) (bool, error) {
	out, err := a.Unpack(method, data)
	if err != nil {
		return false, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}
