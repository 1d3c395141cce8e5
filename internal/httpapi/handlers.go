package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/chain"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/events"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	maxBodyBytes      = 16 << 10
)

type memosResponse struct {
	Memos  []memo.Record `json:"memos"`
	Count  int           `json:"count"`
	Offset int           `json:"offset"`
}

type tipRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type txResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	Status      uint64 `json:"status"`
	Amount      string `json:"amount,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Connect(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Disconnect()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// memos returns the store from ?offset= onward. The store only grows, so a
// client can poll with the count it already holds.
func (s *Server) memos(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, errors.New("offset must be a non-negative integer"))
		return
	}

	all := s.ctrl.Store().Snapshot()
	if offset > len(all) {
		offset = len(all)
	}
	writeJSON(w, http.StatusOK, memosResponse{
		Memos:  all[offset:],
		Count:  len(all),
		Offset: offset,
	})
}

func (s *Server) tip(w http.ResponseWriter, r *http.Request) {
	// Simple form and text posts skip the browser preflight.
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, errors.New("content type must be application/json"))
		return
	}
	var req tipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := s.ctrl.SubmitTip(r.Context(), req.Name, req.Message)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := receiptResponse(receipt)
	resp.Amount = chain.FormatEther(s.ctrl.TipAmount())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.ctrl.Withdraw(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResponse(receipt))
}

func (s *Server) resync(w http.ResponseWriter, r *http.Request) {
	added, err := s.ctrl.Resync(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added, "count": s.ctrl.Store().Len()})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultEventLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
		return
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	var list []events.Event
	if typ := r.URL.Query().Get("type"); typ != "" {
		list = s.cfg.Events.RecentByType(events.EventType(typ), limit)
	} else {
		list = s.cfg.Events.Recent(limit)
	}
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

func receiptResponse(receipt *types.Receipt) txResponse {
	resp := txResponse{
		TxHash:  receipt.TxHash.Hex(),
		GasUsed: receipt.GasUsed,
		Status:  receipt.Status,
	}
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return resp
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeJSON decodes an optional JSON body; an empty body leaves dst zero.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
