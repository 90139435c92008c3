// Package client はREST APIのクライアントと、楽観的更新で申込を管理するクライアント側ストアを提供する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/teeup/internal/model"
)

// ErrOffline はサーバーに到達できないことを表す。
var ErrOffline = errors.New("server unreachable")

// IsOffline はエラーが接続断によるものかを返す。
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// DefaultTimeout はAPI呼び出しの既定の待ち時間。
const DefaultTimeout = 10 * time.Second

// SignupAPI はストアが使う申込APIのインターフェース。
type SignupAPI interface {
	ListSignups(ctx context.Context, from, to string) ([]*model.Signup, error)
	CreateSignup(ctx context.Context, participantID, date string) (*model.Signup, error)
	DeleteSignup(ctx context.Context, id string) (model.DeleteResult, error)
}

// API はteeupサーバーのRESTクライアント。
type API struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewAPI はAPIの新しいインスタンスを生成する。httpClientがnilの場合はDefaultTimeoutのクライアントを使う。
func NewAPI(baseURL string, httpClient *http.Client, logger *slog.Logger) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// --- ワイヤ形式 ---

type participantDTO struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName"`
	LastInitial string    `json:"lastInitial"`
	Contact     string    `json:"contact"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (d *participantDTO) toModel() *model.Participant {
	return &model.Participant{
		ID:          d.ID,
		FirstName:   d.FirstName,
		LastInitial: d.LastInitial,
		Contact:     d.Contact,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type signupDTO struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participantId"`
	Date          string    `json:"date"`
	CreatedAt     time.Time `json:"createdAt"`
	Participant   struct {
		ID          string `json:"id"`
		FirstName   string `json:"firstName"`
		LastInitial string `json:"lastInitial"`
	} `json:"participant"`
}

func (d *signupDTO) toModel() *model.Signup {
	return &model.Signup{
		ID:            d.ID,
		ParticipantID: d.ParticipantID,
		Date:          d.Date,
		CreatedAt:     d.CreatedAt,
		Participant: model.ParticipantSnapshot{
			ID:          d.Participant.ID,
			FirstName:   d.Participant.FirstName,
			LastInitial: d.Participant.LastInitial,
		},
	}
}

type errorDTO struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

type deleteSignupDTO struct {
	Success       bool   `json:"success"`
	DeletedID     string `json:"deletedId"`
	AlreadyAbsent bool   `json:"alreadyAbsent"`
}

// --- エンドポイント ---

// ListSignups はfrom〜toの申込一覧を取得する。両方とも空の場合はサーバー既定の範囲になる。
func (a *API) ListSignups(ctx context.Context, from, to string) ([]*model.Signup, error) {
	q := url.Values{}
	if from != "" || to != "" {
		q.Set("from", from)
		q.Set("to", to)
	}

	var dtos []signupDTO
	if err := a.do(ctx, http.MethodGet, "/signups", q, nil, &dtos); err != nil {
		return nil, err
	}

	signups := make([]*model.Signup, len(dtos))
	for i := range dtos {
		signups[i] = dtos[i].toModel()
	}
	return signups, nil
}

// CreateSignup は申込を作成する。
func (a *API) CreateSignup(ctx context.Context, participantID, date string) (*model.Signup, error) {
	body := map[string]string{"participantId": participantID, "date": date}

	var dto signupDTO
	if err := a.do(ctx, http.MethodPost, "/signups", nil, body, &dto); err != nil {
		return nil, err
	}
	return dto.toModel(), nil
}

// DeleteSignup は申込を削除する。
func (a *API) DeleteSignup(ctx context.Context, id string) (model.DeleteResult, error) {
	var dto deleteSignupDTO
	if err := a.do(ctx, http.MethodDelete, "/signups", url.Values{"id": {id}}, nil, &dto); err != nil {
		return model.DeleteResult{}, err
	}
	return model.DeleteResult{DeletedID: dto.DeletedID, AlreadyAbsent: dto.AlreadyAbsent}, nil
}

// FindParticipant は名前で参加者を検索する。見つからない場合はnilを返す。
func (a *API) FindParticipant(ctx context.Context, firstName, lastInitial string) (*model.Participant, error) {
	q := url.Values{"firstName": {firstName}, "lastInitial": {lastInitial}}

	var dto *participantDTO
	if err := a.do(ctx, http.MethodGet, "/participants", q, nil, &dto); err != nil {
		return nil, err
	}
	if dto == nil {
		return nil, nil
	}
	return dto.toModel(), nil
}

// CreateParticipant は参加者を作成する。
func (a *API) CreateParticipant(ctx context.Context, firstName, lastInitial, contact string) (*model.Participant, error) {
	body := map[string]string{"firstName": firstName, "lastInitial": lastInitial, "contact": contact}

	var dto participantDTO
	if err := a.do(ctx, http.MethodPost, "/participants", nil, body, &dto); err != nil {
		return nil, err
	}
	return dto.toModel(), nil
}

// Health はサーバーとデータベースの疎通を確認する。到達できない場合はErrOfflineを返す。
func (a *API) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return a.transportError(ctx, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrOffline, resp.StatusCode)
	}
	return nil
}

// do はJSONリクエストを送信し、成功時はoutにデコードする。
// エラーレスポンスはmodel.APIErrorに復元する。
func (a *API) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	reqURL := a.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return a.transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return a.transportError(ctx, err)
	}

	if resp.StatusCode >= 400 {
		return a.statusError(method, path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
	}
	return nil
}

// transportError は通信エラーをErrOfflineとして包む。呼び出し元のキャンセルはそのまま返す。
func (a *API) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	a.logger.Warn("APIサーバーに接続できません", slog.String("error", err.Error()))
	return fmt.Errorf("%w: %w", ErrOffline, err)
}

// statusError はエラーステータスのレスポンスをエラーに変換する。
func (a *API) statusError(method, path string, status int, body []byte) error {
	// ゲートウェイ系のエラーはサーバー到達不能として扱う
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s %s returned %d", ErrOffline, method, path, status)
	}

	var e errorDTO
	if err := json.Unmarshal(body, &e); err != nil || e.Code == "" {
		return fmt.Errorf("%s %s がステータス %d を返しました", method, path, status)
	}
	return &model.APIError{
		Kind:     model.KindForCode(e.Code),
		Code:     e.Code,
		Message:  e.Message,
		Category: e.Category,
		Action:   e.Action,
	}
}

var _ SignupAPI = (*API)(nil)
