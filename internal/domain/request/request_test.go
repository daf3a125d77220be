package request

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(t *testing.T) *Request {
	t.Helper()
	req, err := NewRequest(uuid.New(), "Fix kitchen sink", "The sink leaks under the counter", "Berlin", nil, nil)
	require.NoError(t, err)
	return req
}

func int64Ptr(v int64) *int64 { return &v }

func TestNewRequest(t *testing.T) {
	t.Run("valid request starts new and public", func(t *testing.T) {
		req := newTestRequest(t)

		assert.Equal(t, StatusNew, req.Status)
		assert.True(t, req.IsPublic)
		assert.Nil(t, req.ExecutorID)
		assert.False(t, req.Promoted)
		assert.Equal(t, 1, req.Version)
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name       string
			clientID   uuid.UUID
			title      string
			desc       string
			budgetFrom *int64
			budgetTo   *int64
			field      string
		}{
			{"missing client", uuid.Nil, "t", "d", nil, nil, "client_id"},
			{"missing title", uuid.New(), "", "d", nil, nil, "title"},
			{"missing description", uuid.New(), "t", "", nil, nil, "description"},
			{"negative budget", uuid.New(), "t", "d", int64Ptr(-1), nil, "budget_from"},
			{"inverted budget range", uuid.New(), "t", "d", int64Ptr(10), int64Ptr(5), "budget_to"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewRequest(tt.clientID, tt.title, tt.desc, "", tt.budgetFrom, tt.budgetTo)
				var validationErr ErrValidation
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, tt.field, validationErr.Field)
			})
		}
	})
}

func TestRequest_MarkViewed(t *testing.T) {
	t.Run("view by stranger advances new to viewed", func(t *testing.T) {
		req := newTestRequest(t)

		req.MarkViewed(uuid.New())
		assert.Equal(t, StatusViewed, req.Status)
		assert.Equal(t, int64(1), req.ViewsCount)
	})

	t.Run("view by the client is not counted", func(t *testing.T) {
		req := newTestRequest(t)

		req.MarkViewed(req.ClientID)
		assert.Equal(t, StatusNew, req.Status)
		assert.Equal(t, int64(0), req.ViewsCount)
	})

	t.Run("repeat views count but never regress the status", func(t *testing.T) {
		req := newTestRequest(t)
		executor := uuid.New()
		req.MarkViewed(executor)
		require.NoError(t, req.Accept(executor, nil))

		req.MarkViewed(uuid.New())
		assert.Equal(t, StatusAccepted, req.Status)
		assert.Equal(t, int64(2), req.ViewsCount)
	})
}

func TestRequest_Accept(t *testing.T) {
	t.Run("any non-client may accept an open request", func(t *testing.T) {
		req := newTestRequest(t)
		executor := uuid.New()

		err := req.Accept(executor, int64Ptr(40))
		require.NoError(t, err)
		assert.Equal(t, StatusAccepted, req.Status)
		require.NotNil(t, req.ExecutorID)
		assert.Equal(t, executor, *req.ExecutorID)
		require.NotNil(t, req.AgreedPrice)
		assert.Equal(t, int64(40), *req.AgreedPrice)
	})

	t.Run("accept without price leaves it open for set_price", func(t *testing.T) {
		req := newTestRequest(t)

		require.NoError(t, req.Accept(uuid.New(), nil))
		assert.Nil(t, req.AgreedPrice)
	})

	t.Run("client cannot accept their own request", func(t *testing.T) {
		req := newTestRequest(t)

		err := req.Accept(req.ClientID, nil)
		var forbidden ErrForbidden
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("pre-assigned request only accepts its executor", func(t *testing.T) {
		req := newTestRequest(t)
		assigned := uuid.New()
		req.AssignExecutor(assigned)

		err := req.Accept(uuid.New(), nil)
		var forbidden ErrForbidden
		require.ErrorAs(t, err, &forbidden)

		require.NoError(t, req.Accept(assigned, nil))
		assert.Equal(t, StatusAccepted, req.Status)
	})

	t.Run("accept from terminal status is rejected", func(t *testing.T) {
		req := newTestRequest(t)
		require.NoError(t, req.Cancel(req.ClientID))

		err := req.Accept(uuid.New(), nil)
		var transitionErr ErrInvalidTransition
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, StatusCancelled, transitionErr.Status)
		assert.Equal(t, ActionAccept, transitionErr.Action)
	})
}

func TestRequest_SetPrice(t *testing.T) {
	req := newTestRequest(t)
	executor := uuid.New()
	require.NoError(t, req.Accept(executor, nil))

	t.Run("executor may set the price after acceptance", func(t *testing.T) {
		require.NoError(t, req.SetPrice(executor, 75))
		require.NotNil(t, req.AgreedPrice)
		assert.Equal(t, int64(75), *req.AgreedPrice)
	})

	t.Run("non-executor cannot set the price", func(t *testing.T) {
		err := req.SetPrice(req.ClientID, 10)
		var forbidden ErrForbidden
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("non-positive price is rejected", func(t *testing.T) {
		err := req.SetPrice(executor, 0)
		var validationErr ErrValidation
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "agreed_price", validationErr.Field)
	})

	t.Run("price can be renegotiated while in progress", func(t *testing.T) {
		require.NoError(t, req.Start(executor))
		require.NoError(t, req.SetPrice(executor, 90))
		assert.Equal(t, int64(90), *req.AgreedPrice)
	})
}

func TestRequest_StartAndComplete(t *testing.T) {
	req := newTestRequest(t)
	executor := uuid.New()
	require.NoError(t, req.Accept(executor, int64Ptr(50)))

	t.Run("only the executor may start", func(t *testing.T) {
		err := req.Start(uuid.New())
		var forbidden ErrForbidden
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("start then complete", func(t *testing.T) {
		require.NoError(t, req.Start(executor))
		assert.Equal(t, StatusInProgress, req.Status)

		require.NoError(t, req.Complete(executor))
		assert.Equal(t, StatusCompleted, req.Status)
	})

	t.Run("complete twice is rejected", func(t *testing.T) {
		err := req.Complete(executor)
		var transitionErr ErrInvalidTransition
		assert.ErrorAs(t, err, &transitionErr)
	})
}

func TestRequest_Reject(t *testing.T) {
	req := newTestRequest(t)
	executor := uuid.New()
	require.NoError(t, req.Accept(executor, nil))

	t.Run("only the executor may reject", func(t *testing.T) {
		err := req.Reject(uuid.New())
		var forbidden ErrForbidden
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("reject clears the assignment", func(t *testing.T) {
		require.NoError(t, req.Reject(executor))
		assert.Equal(t, StatusRejected, req.Status)
		assert.Nil(t, req.ExecutorID)
		assert.True(t, req.Terminal())
	})
}

func TestRequest_Cancel(t *testing.T) {
	t.Run("client may cancel before work starts", func(t *testing.T) {
		req := newTestRequest(t)
		req.MarkViewed(uuid.New())

		require.NoError(t, req.Cancel(req.ClientID))
		assert.Equal(t, StatusCancelled, req.Status)
	})

	t.Run("non-client cannot cancel", func(t *testing.T) {
		req := newTestRequest(t)

		err := req.Cancel(uuid.New())
		var forbidden ErrForbidden
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("cancel after acceptance is rejected", func(t *testing.T) {
		req := newTestRequest(t)
		require.NoError(t, req.Accept(uuid.New(), nil))

		err := req.Cancel(req.ClientID)
		var transitionErr ErrInvalidTransition
		assert.ErrorAs(t, err, &transitionErr)
	})
}

func TestRequest_PreparePay(t *testing.T) {
	setupCompleted := func(t *testing.T, price *int64) (*Request, uuid.UUID) {
		t.Helper()
		req := newTestRequest(t)
		executor := uuid.New()
		require.NoError(t, req.Accept(executor, price))
		require.NoError(t, req.Start(executor))
		require.NoError(t, req.Complete(executor))
		return req, executor
	}

	t.Run("returns amount and executor for a completed priced request", func(t *testing.T) {
		req, executor := setupCompleted(t, int64Ptr(120))

		amount, executorID, err := req.PreparePay(req.ClientID)
		require.NoError(t, err)
		assert.Equal(t, int64(120), amount)
		assert.Equal(t, executor, executorID)
	})

	t.Run("without agreed price", func(t *testing.T) {
		req, _ := setupCompleted(t, nil)

		_, _, err := req.PreparePay(req.ClientID)
		assert.ErrorIs(t, err, ErrMissingAgreedPrice)
	})

	t.Run("only the client may pay", func(t *testing.T) {
		req, executor := setupCompleted(t, int64Ptr(120))

		_, _, err := req.PreparePay(executor)
		var forbidden ErrForbidden
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("payment before completion", func(t *testing.T) {
		req := newTestRequest(t)
		require.NoError(t, req.Accept(uuid.New(), int64Ptr(10)))

		_, _, err := req.PreparePay(req.ClientID)
		var transitionErr ErrInvalidTransition
		assert.ErrorAs(t, err, &transitionErr)
	})

	t.Run("double payment", func(t *testing.T) {
		req, _ := setupCompleted(t, int64Ptr(120))
		_, _, err := req.PreparePay(req.ClientID)
		require.NoError(t, err)
		req.MarkPaid(time.Now())

		_, _, err = req.PreparePay(req.ClientID)
		assert.ErrorIs(t, err, ErrAlreadyPaid)
	})
}

func TestRequest_MarkPaid(t *testing.T) {
	req := newTestRequest(t)
	executor := uuid.New()
	require.NoError(t, req.Accept(executor, int64Ptr(60)))
	require.NoError(t, req.Start(executor))
	require.NoError(t, req.Complete(executor))

	now := time.Now()
	req.MarkPaid(now)

	assert.Equal(t, StatusPaid, req.Status)
	assert.True(t, req.IsPaid)
	require.NotNil(t, req.PaidAt)
	assert.True(t, req.Terminal())
}

func TestRequest_PromotionActive(t *testing.T) {
	now := time.Now()

	t.Run("inactive without purchase", func(t *testing.T) {
		req := newTestRequest(t)
		assert.False(t, req.PromotionActive(now))
	})

	t.Run("active inside the window", func(t *testing.T) {
		req := newTestRequest(t)
		req.GrantPromotion(now.Add(7 * 24 * time.Hour))
		assert.True(t, req.PromotionActive(now))
	})

	t.Run("expires lazily at the deadline", func(t *testing.T) {
		req := newTestRequest(t)
		until := now.Add(time.Hour)
		req.GrantPromotion(until)

		assert.True(t, req.PromotionActive(until.Add(-time.Second)))
		assert.False(t, req.PromotionActive(until))
		assert.False(t, req.PromotionActive(until.Add(time.Second)))

		// The stored flag stays; only the derived answer changes
		assert.True(t, req.Promoted)
	})
}

func TestRequest_Deletable(t *testing.T) {
	req := newTestRequest(t)
	assert.True(t, req.Deletable())

	req.MarkViewed(uuid.New())
	assert.True(t, req.Deletable())

	require.NoError(t, req.Accept(uuid.New(), nil))
	assert.False(t, req.Deletable())
}

// TestTransitionTable pins the complete state machine: every (status, action)
// pair outside this list must be rejected.
func TestTransitionTable(t *testing.T) {
	allowed := map[Status][]Action{
		StatusNew:        {ActionAccept, ActionReject, ActionCancel},
		StatusViewed:     {ActionAccept, ActionReject, ActionCancel},
		StatusAccepted:   {ActionStart, ActionReject, ActionSetPrice},
		StatusInProgress: {ActionComplete, ActionSetPrice},
		StatusCompleted:  {ActionPay},
		StatusPaid:       {},
		StatusCancelled:  {},
		StatusRejected:   {},
	}
	actions := []Action{ActionAccept, ActionStart, ActionComplete, ActionReject, ActionCancel, ActionSetPrice, ActionPay}

	for status, allowedActions := range allowed {
		allowedSet := make(map[Action]bool, len(allowedActions))
		for _, a := range allowedActions {
			allowedSet[a] = true
		}
		for _, action := range actions {
			assert.Equal(t, allowedSet[action], transitionAllowed(status, action),
				"status %s action %s", status, action)
		}
	}
}
