package deposit_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/dwarvesf/zenz-bridge/internal/handler/deposit"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
	"github.com/dwarvesf/zenz-bridge/internal/view"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) SubmitDeposit(ctx context.Context, req relayer.DepositRequest) (relayer.Result, error) {
	args := m.Called(req)
	return args.Get(0).(relayer.Result), args.Error(1)
}

var _ = Describe("SubmitDeposit", func() {
	var (
		submitter *MockSubmitter
		router    *gin.Engine
	)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		submitter = &MockSubmitter{}
		h := deposit.New(submitter, logger.New(environments.Test), nil)
		router = gin.New()
		router.POST("/api/v1/deposits", h.SubmitDeposit)
	})

	AfterEach(func() {
		submitter.AssertExpectations(GinkgoT())
	})

	It("passes the normalised request to the relayer and returns 200 when settled", func() {
		submitter.On("SubmitDeposit", relayer.DepositRequest{
			Chain:              model.ChainBTC,
			SourceTxID:         "abc123",
			Amount:             150000,
			DestinationAddress: "So1Dest",
		}).Return(relayer.Result{
			Kind:           model.RecordKindDeposit,
			Key:            "BTC:abc123",
			Status:         "processed",
			Outcome:        relayer.OutcomeSettled,
			SettlementTxID: "mintsig",
		}, nil)

		w := post(`{"chain":"btc","tx_id":"abc123","amount":150000,"destination_address":"So1Dest"}`)

		Expect(w.Code).To(Equal(http.StatusOK))
		var response view.Response[relayer.Result]
		Expect(json.Unmarshal(w.Body.Bytes(), &response)).To(Succeed())
		Expect(response.Data.Key).To(Equal("BTC:abc123"))
		Expect(response.Data.SettlementTxID).To(Equal("mintsig"))
		Expect(response.Message).To(Equal("settled"))
		Expect(response.Error).To(BeEmpty())
	})

	DescribeTable("maps outcomes to status codes",
		func(outcome relayer.Outcome, code int) {
			submitter.On("SubmitDeposit", mock.Anything).Return(relayer.Result{
				Kind:    model.RecordKindDeposit,
				Key:     "ZEC:tx",
				Outcome: outcome,
			}, nil)

			w := post(`{"chain":"ZEC","tx_id":"tx","amount":1,"destination_address":"So1Dest"}`)
			Expect(w.Code).To(Equal(code))
		},
		Entry("already processed", relayer.OutcomeAlreadyProcessed, http.StatusOK),
		Entry("in progress", relayer.OutcomeInProgress, http.StatusAccepted),
		Entry("awaiting confirmation", relayer.OutcomeAwaitingConfirmation, http.StatusAccepted),
		Entry("deferred", relayer.OutcomeDeferred, http.StatusAccepted),
		Entry("rejected", relayer.OutcomeRejected, http.StatusUnprocessableEntity),
		Entry("paused", relayer.OutcomePaused, http.StatusServiceUnavailable),
	)

	It("rejects malformed bodies without calling the relayer", func() {
		w := post(`{"chain":"BTC","tx_id":`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		submitter.AssertNotCalled(GinkgoT(), "SubmitDeposit", mock.Anything)
	})

	It("rejects unknown chains", func() {
		w := post(`{"chain":"ETH","tx_id":"tx","amount":1,"destination_address":"So1Dest"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		submitter.AssertNotCalled(GinkgoT(), "SubmitDeposit", mock.Anything)
	})

	It("rejects non-positive amounts", func() {
		w := post(`{"chain":"BTC","tx_id":"tx","amount":-5,"destination_address":"So1Dest"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		submitter.AssertNotCalled(GinkgoT(), "SubmitDeposit", mock.Anything)
	})

	It("returns 400 for relayer validation errors", func() {
		submitter.On("SubmitDeposit", mock.Anything).
			Return(relayer.Result{}, fmt.Errorf("%w: deposits from %q", relayer.ErrUnsupportedChain, "SOL"))

		w := post(`{"chain":"SOL","tx_id":"sig","amount":10,"destination_address":"So1Dest"}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		var response view.ErrorResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &response)).To(Succeed())
		Expect(response.Error).To(ContainSubstring("unsupported chain"))
	})

	It("returns 500 for ledger failures", func() {
		submitter.On("SubmitDeposit", mock.Anything).Return(relayer.Result{}, errors.New("database is locked"))

		w := post(`{"chain":"BTC","tx_id":"tx","amount":10,"destination_address":"So1Dest"}`)

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).To(ContainSubstring("failed to submit deposit"))
	})
})
