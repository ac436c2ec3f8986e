package testutil

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/pool-state/internal/pkg/blockchain/abis"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// ContractCall is one inner call of an aggregate3 request.
type ContractCall struct {
	Target   common.Address
	CallData []byte
	Block    uint64
}

// CallHandler answers one contract call. ok false makes the call revert.
type CallHandler func(call ContractCall) (returnData []byte, ok bool)

// MockEthRPC is an httptest JSON-RPC node serving eth_getLogs,
// eth_getBlockByNumber, eth_getTransactionReceipt and eth_call. eth_call is
// answered as a Multicall3 aggregate3 whose inner calls go to Handler.
type MockEthRPC struct {
	*httptest.Server

	mu       sync.Mutex
	head     uint64
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt
	handler  CallHandler
	failures map[string][]string
	requests map[string]int
}

// StartMockEthRPC starts a node whose chain head is head. The server is closed
// when the test ends.
func StartMockEthRPC(t *testing.T, head uint64) *MockEthRPC {
	t.Helper()

	multicallABI, err := abis.GetMulticall3ABI()
	if err != nil {
		t.Fatalf("load multicall3 ABI: %v", err)
	}

	m := &MockEthRPC{
		head:     head,
		receipts: make(map[common.Hash]*types.Receipt),
		failures: make(map[string][]string),
		requests: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")

		var req JSONRPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
			return
		}
		if msg, fail := m.nextFailure(req.Method); fail {
			WriteRPCError(w, req.ID, -32005, msg)
			return
		}

		switch req.Method {
		case "eth_call":
			m.serveCall(t, w, req, multicallABI)
		case "eth_getBlockByNumber":
			m.serveHeader(w, req)
		case "eth_getLogs":
			m.serveLogs(w, req)
		case "eth_getTransactionReceipt":
			m.serveReceipt(w, req)
		default:
			WriteRPCError(w, req.ID, -32601, "method not found: "+req.Method)
		}
	}))
	t.Cleanup(m.Server.Close)
	return m
}

// AddLogs appends logs to the chain.
func (m *MockEthRPC) AddLogs(logs ...types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
}

// AddReceipt registers a receipt by its transaction hash.
func (m *MockEthRPC) AddReceipt(receipt *types.Receipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[receipt.TxHash] = receipt
}

// SetCallHandler sets the handler of aggregate3 inner calls.
func (m *MockEthRPC) SetCallHandler(h CallHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// FailNext makes the next n requests of method fail with message.
func (m *MockEthRPC) FailNext(method string, n int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures[method] = append(m.failures[method], message)
	}
}

// Requests returns how many requests of method were received.
func (m *MockEthRPC) Requests(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[method]
}

func (m *MockEthRPC) nextFailure(method string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[method]++
	queue := m.failures[method]
	if len(queue) == 0 {
		return "", false
	}
	m.failures[method] = queue[1:]
	return queue[0], true
}

func (m *MockEthRPC) serveCall(t *testing.T, w http.ResponseWriter, req JSONRPCRequest, multicallABI *abi.ABI) {
	var params []json.RawMessage
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) < 2 {
		WriteRPCError(w, req.ID, -32602, "invalid params")
		return
	}
	var msg struct {
		To    common.Address `json:"to"`
		Data  hexutil.Bytes  `json:"data"`
		Input hexutil.Bytes  `json:"input"`
	}
	if err := json.Unmarshal(params[0], &msg); err != nil {
		WriteRPCError(w, req.ID, -32602, "invalid call object")
		return
	}
	data := msg.Input
	if len(data) == 0 {
		data = msg.Data
	}
	block := m.parseBlockTag(params[1])

	method := multicallABI.Methods["aggregate3"]
	if len(data) < 4 || string(data[:4]) != string(method.ID) {
		WriteRPCError(w, req.ID, -32000, "execution reverted")
		return
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		WriteRPCError(w, req.ID, -32000, "execution reverted: "+err.Error())
		return
	}

	type call3 struct {
		Target       common.Address
		AllowFailure bool
		CallData     []byte
	}
	type result struct {
		Success    bool
		ReturnData []byte
	}
	calls := *abi.ConvertType(args[0], new([]call3)).(*[]call3)

	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()

	results := make([]result, len(calls))
	for i, c := range calls {
		var out []byte
		ok := false
		if handler != nil {
			out, ok = handler(ContractCall{Target: c.Target, CallData: c.CallData, Block: block})
		}
		if !ok && !c.AllowFailure {
			WriteRPCError(w, req.ID, -32000, "execution reverted")
			return
		}
		results[i] = result{Success: ok, ReturnData: out}
	}

	packed, err := method.Outputs.Pack(results)
	if err != nil {
		t.Errorf("pack aggregate3 results: %v", err)
		WriteRPCError(w, req.ID, -32603, "internal error")
		return
	}
	resultJSON, _ := json.Marshal(hexutil.Bytes(packed))
	WriteRPCResult(w, req.ID, resultJSON)
}

func (m *MockEthRPC) serveHeader(w http.ResponseWriter, req JSONRPCRequest) {
	var params []json.RawMessage
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) < 1 {
		WriteRPCError(w, req.ID, -32602, "invalid params")
		return
	}
	block := m.parseBlockTag(params[0])

	m.mu.Lock()
	head := m.head
	m.mu.Unlock()
	if block > head {
		WriteRPCResult(w, req.ID, json.RawMessage(`null`))
		return
	}
	writeBlockHeaderResponse(w, req.ID, int64(block))
}

func (m *MockEthRPC) serveLogs(w http.ResponseWriter, req JSONRPCRequest) {
	var params []struct {
		FromBlock string           `json:"fromBlock"`
		ToBlock   string           `json:"toBlock"`
		Address   []common.Address `json:"address"`
		Topics    [][]common.Hash  `json:"topics"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) != 1 {
		WriteRPCError(w, req.ID, -32602, "invalid filter")
		return
	}
	filter := params[0]
	from := parseHexUint64(filter.FromBlock)
	to := parseHexUint64(filter.ToBlock)

	m.mu.Lock()
	matched := make([]types.Log, 0)
	for _, log := range m.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(filter.Address) > 0 && !containsAddress(filter.Address, log.Address) {
			continue
		}
		if !matchesTopics(filter.Topics, log.Topics) {
			continue
		}
		matched = append(matched, log)
	}
	m.mu.Unlock()

	resultJSON, _ := json.Marshal(matched)
	WriteRPCResult(w, req.ID, resultJSON)
}

func (m *MockEthRPC) serveReceipt(w http.ResponseWriter, req JSONRPCRequest) {
	var params []common.Hash
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) != 1 {
		WriteRPCError(w, req.ID, -32602, "invalid params")
		return
	}

	m.mu.Lock()
	receipt, ok := m.receipts[params[0]]
	m.mu.Unlock()
	if !ok {
		WriteRPCResult(w, req.ID, json.RawMessage(`null`))
		return
	}
	resultJSON, _ := json.Marshal(receipt)
	WriteRPCResult(w, req.ID, resultJSON)
}

func (m *MockEthRPC) parseBlockTag(raw json.RawMessage) uint64 {
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil || tag == "latest" || tag == "pending" {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.head
	}
	return parseHexUint64(tag)
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func matchesTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, want := range filter {
		if len(want) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, h := range want {
			if h == topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	})
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	errJSON, _ := json.Marshal(map[string]interface{}{"code": code, "message": message})
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	})
}

func writeBlockHeaderResponse(w http.ResponseWriter, id json.RawMessage, blockNum int64) {
	timestamp := GenesisTimestamp + blockNum*BlockTime
	header := map[string]string{
		"parentHash":       common.BigToHash(big.NewInt(blockNum - 1)).Hex(),
		"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
		"miner":            "0x0000000000000000000000000000000000000000",
		"stateRoot":        "0x0000000000000000000000000000000000000000000000000000000000000000",
		"transactionsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
		"receiptsRoot":     "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
		"logsBloom":        "0x" + strings.Repeat("0", 512),
		"difficulty":       "0x0",
		"number":           hexutil.EncodeUint64(uint64(blockNum)),
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"timestamp":        hexutil.EncodeUint64(uint64(timestamp)),
		"extraData":        "0x",
		"mixHash":          "0x0000000000000000000000000000000000000000000000000000000000000000",
		"nonce":            "0x0000000000000000",
		"baseFeePerGas":    "0x0",
	}
	headerJSON, _ := json.Marshal(header)
	WriteRPCResult(w, id, json.RawMessage(headerJSON))
}

func parseHexUint64(s string) uint64 {
	n, _ := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	return n
}
