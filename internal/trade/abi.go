package trade

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the methods the bet flow calls are declared.
const erc20ABI = `[
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const sportsAMMV2ABI = `[
	{"type":"function","name":"trade","stateMutability":"payable",
	 "inputs":[
		{"name":"_tradeData","type":"tuple[]","components":[
			{"name":"gameId","type":"bytes32"},
			{"name":"sportId","type":"uint16"},
			{"name":"typeId","type":"uint16"},
			{"name":"maturity","type":"uint256"},
			{"name":"status","type":"uint8"},
			{"name":"line","type":"int24"},
			{"name":"playerId","type":"uint24"},
			{"name":"odds","type":"uint256[]"},
			{"name":"merkleProof","type":"bytes32[]"},
			{"name":"position","type":"uint8"},
			{"name":"combinedPositions","type":"tuple[][]","components":[
				{"name":"typeId","type":"uint16"},
				{"name":"position","type":"uint8"},
				{"name":"line","type":"int24"}
			]}
		]},
		{"name":"_buyInAmount","type":"uint256"},
		{"name":"_expectedQuote","type":"uint256"},
		{"name":"_additionalSlippage","type":"uint256"},
		{"name":"_referrer","type":"address"},
		{"name":"_collateral","type":"address"},
		{"name":"_isEth","type":"bool"}
	 ],
	 "outputs":[{"name":"_createdTicket","type":"address"}]}
]`

var (
	// ERC20 is the parsed collateral token ABI
	ERC20 = mustParse(erc20ABI)

	// SportsAMMV2 is the parsed AMM ABI
	SportsAMMV2 = mustParse(sportsAMMV2ABI)
)

// LineScale converts a vendor line (e.g. -1.5) to the contract's int24
const LineScale = 100

// TradeData is one ticket leg in contract encoding
type TradeData struct {
	GameId            [32]byte
	SportId           uint16
	TypeId            uint16
	Maturity          *big.Int
	Status            uint8
	Line              *big.Int
	PlayerId          *big.Int
	Odds              []*big.Int
	MerkleProof       [][32]byte
	Position          uint8
	CombinedPositions [][]CombinedPosition
}

// CombinedPosition is a same-game parlay link in contract encoding
type CombinedPosition struct {
	TypeId   uint16
	Position uint8
	Line     *big.Int
}

// NewTradeData encodes a market position. Odds and lines become fixed point.
func NewTradeData(m models.MarketRecord, position int) (TradeData, error) {
	if position < 0 || position >= len(m.Odds) {
		return TradeData{}, fmt.Errorf("position %d out of range for %d outcomes", position, len(m.Odds))
	}

	gameID, err := parseBytes32(m.GameID)
	if err != nil {
		return TradeData{}, fmt.Errorf("game id: %w", err)
	}

	proof := make([][32]byte, len(m.Proof))
	for i, p := range m.Proof {
		if proof[i], err = parseBytes32(p); err != nil {
			return TradeData{}, fmt.Errorf("merkle proof %d: %w", i, err)
		}
	}

	odds := make([]*big.Int, len(m.Odds))
	for i, o := range m.Odds {
		odds[i] = ParseEther(o.NormalizedImplied)
	}

	combined := make([][]CombinedPosition, len(m.CombinedPositions))
	for i, group := range m.CombinedPositions {
		combined[i] = make([]CombinedPosition, len(group))
		for j, cp := range group {
			combined[i][j] = CombinedPosition{
				TypeId:   uint16(cp.TypeID),
				Position: uint8(cp.Position),
				Line:     scaleLine(cp.Line),
			}
		}
	}

	playerID := big.NewInt(0)
	if m.PlayerProps != nil {
		playerID = big.NewInt(int64(m.PlayerProps.PlayerID))
	}

	return TradeData{
		GameId:            gameID,
		SportId:           uint16(m.SubLeagueID),
		TypeId:            uint16(m.TypeID),
		Maturity:          big.NewInt(m.Maturity),
		Status:            uint8(m.Status),
		Line:              scaleLine(m.Line),
		PlayerId:          playerID,
		Odds:              odds,
		MerkleProof:       proof,
		Position:          uint8(position),
		CombinedPositions: combined,
	}, nil
}

func scaleLine(line float64) *big.Int {
	return big.NewInt(int64(roundHalfAway(line * LineScale)))
}

func roundHalfAway(v float64) float64 {
	if v < 0 {
		return -float64(int64(-v + 0.5))
	}
	return float64(int64(v + 0.5))
}

// parseBytes32 decodes a 0x-prefixed hex value of at most 32 bytes, left padded
func parseBytes32(s string) ([32]byte, error) {
	var out [32]byte
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return out, fmt.Errorf("%q is not 0x-prefixed hex", s)
	}
	b, err := hexDecode(s[2:])
	if err != nil {
		return out, fmt.Errorf("%q: %w", s, err)
	}
	if len(b) > 32 {
		return out, fmt.Errorf("%q is longer than 32 bytes", s)
	}
	copy(out[32-len(b):], b)
	return out, nil
}

func hexDecode(s string) ([]byte, error) {
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}
