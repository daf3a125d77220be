package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/communitymarket/ucm-ledger/internal/api/service"
	"github.com/communitymarket/ucm-ledger/internal/domain/account"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTransferService struct {
	mock.Mock
}

func (m *MockTransferService) Transfer(ctx context.Context, params transfer.TransferParams) (*transfer.TransferResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transfer.TransferResult), args.Error(1)
}

func (m *MockTransferService) Grant(ctx context.Context, params transfer.GrantParams) (int64, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(int64), args.Error(1)
}

func TestTransferHandler_Create(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		senderID := uuid.New()
		recipientID := uuid.New()
		result := &transfer.TransferResult{
			TransferID:       uuid.New(),
			SenderID:         senderID,
			RecipientID:      recipientID,
			Amount:           40,
			SenderBalance:    210,
			RecipientBalance: 290,
		}
		mockService.On("Transfer", mock.Anything, transfer.TransferParams{
			SenderID:    senderID,
			RecipientID: recipientID,
			Amount:      40,
			Note:        "thanks for the help",
		}).Return(result, nil)

		router := setupTestRouter()
		router.POST("/transfers", handler.Create)

		reqBody := CreateTransferRequest{
			RecipientID: recipientID.String(),
			Amount:      40,
			Note:        "thanks for the help",
		}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/transfers", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserIDHeader, senderID.String())
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var topLevelResponse Response
		err := json.Unmarshal(rr.Body.Bytes(), &topLevelResponse)
		assert.NoError(t, err)
		require.NotNil(t, topLevelResponse.Data)

		var responseBody TransferResponse
		dataBytes, marshalErr := json.Marshal(topLevelResponse.Data)
		require.NoError(t, marshalErr)
		require.NoError(t, json.Unmarshal(dataBytes, &responseBody))

		assert.Equal(t, result.TransferID.String(), responseBody.TransferID)
		assert.Equal(t, int64(40), responseBody.Amount)
		assert.Equal(t, int64(210), responseBody.SenderBalance)
		assert.Equal(t, int64(290), responseBody.RecipientBalance)

		mockService.AssertExpectations(t)
	})

	t.Run("ReplayedReturnsOK", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		senderID := uuid.New()
		recipientID := uuid.New()
		result := &transfer.TransferResult{
			TransferID:       uuid.New(),
			SenderID:         senderID,
			RecipientID:      recipientID,
			Amount:           40,
			SenderBalance:    210,
			RecipientBalance: 290,
			Replayed:         true,
		}
		mockService.On("Transfer", mock.Anything, transfer.TransferParams{
			SenderID:       senderID,
			RecipientID:    recipientID,
			Amount:         40,
			IdempotencyKey: "send-once",
		}).Return(result, nil)

		router := setupTestRouter()
		router.POST("/transfers", handler.Create)

		reqBody := CreateTransferRequest{
			RecipientID:    recipientID.String(),
			Amount:         40,
			IdempotencyKey: "send-once",
		}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/transfers", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserIDHeader, senderID.String())
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		// A replay of an already settled transfer is 200, not 201
		assert.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("MissingUserHeader", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/transfers", handler.Create)

		reqBody := CreateTransferRequest{RecipientID: uuid.New().String(), Amount: 40}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/transfers", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/transfers", handler.Create)

		reqBody := CreateTransferRequest{RecipientID: uuid.New().String(), Amount: -5}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/transfers", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserIDHeader, uuid.New().String())
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		// Rejected by request binding before the service is consulted
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("SelfTransfer", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		senderID := uuid.New()
		mockService.On("Transfer", mock.Anything, mock.Anything).Return(nil, transfer.ErrSelfTransfer)

		router := setupTestRouter()
		router.POST("/transfers", handler.Create)

		reqBody := CreateTransferRequest{RecipientID: senderID.String(), Amount: 40}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/transfers", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserIDHeader, senderID.String())
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		senderID := uuid.New()
		mockService.On("Transfer", mock.Anything, mock.Anything).
			Return(nil, account.ErrInsufficientFunds{AccountID: senderID})

		router := setupTestRouter()
		router.POST("/transfers", handler.Create)

		reqBody := CreateTransferRequest{RecipientID: uuid.New().String(), Amount: 4000}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/transfers", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserIDHeader, senderID.String())
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		var response Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.NotNil(t, response.Error)
		assert.Equal(t, "INSUFFICIENT_FUNDS", response.Error.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("RecipientNotFound", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		recipientID := uuid.New()
		mockService.On("Transfer", mock.Anything, mock.Anything).
			Return(nil, account.ErrAccountNotFound{AccountID: recipientID})

		router := setupTestRouter()
		router.POST("/transfers", handler.Create)

		reqBody := CreateTransferRequest{RecipientID: recipientID.String(), Amount: 40}
		jsonBody, _ := json.Marshal(reqBody)

		req, _ := http.NewRequest(http.MethodPost, "/transfers", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(UserIDHeader, uuid.New().String())
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestTransferHandler_Grant(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		accountID := uuid.New()
		mockService.On("Grant", mock.Anything, transfer.GrantParams{
			AccountID: accountID,
			Amount:    100,
			Reason:    ledger.ReasonAdminGrant,
			Meta:      map[string]string{"note": "goodwill credit"},
		}).Return(int64(350), nil)

		router := setupTestRouter()
		router.POST("/accounts/:id/grants", handler.Grant)

		jsonBody, _ := json.Marshal(GrantRequest{Amount: 100, Note: "goodwill credit"})
		req, _ := http.NewRequest(http.MethodPost, "/accounts/"+accountID.String()+"/grants", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var topLevelResponse Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &topLevelResponse))
		var responseBody GrantResponse
		dataBytes, _ := json.Marshal(topLevelResponse.Data)
		require.NoError(t, json.Unmarshal(dataBytes, &responseBody))
		assert.Equal(t, accountID.String(), responseBody.AccountID)
		assert.Equal(t, int64(100), responseBody.Amount)
		assert.Equal(t, int64(350), responseBody.Balance)

		mockService.AssertExpectations(t)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/accounts/:id/grants", handler.Grant)

		jsonBody, _ := json.Marshal(GrantRequest{Amount: 0})
		req, _ := http.NewRequest(http.MethodPost, "/accounts/"+uuid.New().String()+"/grants", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		mockService := new(MockTransferService)
		handler := NewTransferHandler(logger, mockService)

		accountID := uuid.New()
		mockService.On("Grant", mock.Anything, mock.Anything).
			Return(int64(0), account.ErrAccountNotFound{AccountID: accountID})

		router := setupTestRouter()
		router.POST("/accounts/:id/grants", handler.Grant)

		jsonBody, _ := json.Marshal(GrantRequest{Amount: 100})
		req, _ := http.NewRequest(http.MethodPost, "/accounts/"+accountID.String()+"/grants", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}

var _ service.TransferService = (*MockTransferService)(nil)
