package gamesource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/valyala/fasthttp"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/domain"
)

const (
	lichessBaseURL    = "https://lichess.org"
	lichessTimeout    = 15 * time.Second
	lichessRetryMax   = 3
	lichessMaxPerCall = 100
)

// LichessSource fetches a subject's recent games from the Lichess export API
// and converts them to move records. The export endpoint streams NDJSON, one
// game per line, with SAN move text; the moves are replayed locally to attach
// UCI and FEN per ply.
type LichessSource struct {
	baseURL string
	http    *fasthttp.Client
	token   string
}

type LichessOption func(*LichessSource)

func WithLichessToken(token string) LichessOption {
	return func(s *LichessSource) { s.token = token }
}

func WithLichessBaseURL(url string) LichessOption {
	return func(s *LichessSource) { s.baseURL = strings.TrimRight(url, "/") }
}

func NewLichessSource(opts ...LichessOption) *LichessSource {
	s := &LichessSource{
		baseURL: lichessBaseURL,
		http: &fasthttp.Client{
			ReadTimeout:     lichessTimeout,
			WriteTimeout:    lichessTimeout,
			MaxConnsPerHost: 8,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type lichessPlayer struct {
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

type lichessGame struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	Speed     string `json:"speed"`
	Players   struct {
		White lichessPlayer `json:"white"`
		Black lichessPlayer `json:"black"`
	} `json:"players"`
	Opening struct {
		ECO string `json:"eco"`
	} `json:"opening"`
	Moves string `json:"moves"`
}

func (s *LichessSource) FetchGames(ctx context.Context, subject domain.Subject, limit int) ([]domain.GameRecord, error) {
	if limit <= 0 || limit > lichessMaxPerCall {
		limit = lichessMaxPerCall
	}

	body, err := s.export(ctx, subject.UserID, limit)
	if err != nil {
		return nil, err
	}

	var games []domain.GameRecord
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var lg lichessGame
		if err := json.Unmarshal(line, &lg); err != nil {
			return nil, fmt.Errorf("decode lichess game: %w", err)
		}
		rec, err := convertLichessGame(subject.UserID, lg)
		if err != nil {
			// A single unparseable game should not sink the batch.
			continue
		}
		games = append(games, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lichess export: %w", err)
	}
	if len(games) == 0 {
		return nil, ErrNoGames
	}
	return games, nil
}

func (s *LichessSource) export(ctx context.Context, username string, limit int) ([]byte, error) {
	url := fmt.Sprintf("%s/api/games/user/%s?max=%d&opening=true&moves=true", s.baseURL, username, limit)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(url)
	req.Header.Set("Accept", "application/x-ndjson")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	var lastErr error
	for attempt := 1; attempt <= lichessRetryMax; attempt++ {
		deadline := time.Now().Add(lichessTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		err := s.http.DoDeadline(req, resp, deadline)
		if err != nil {
			lastErr = fmt.Errorf("lichess request failed: %w", err)
		} else {
			switch status := resp.StatusCode(); {
			case status == fasthttp.StatusNotFound:
				return nil, ErrNoGames
			case status >= 200 && status < 300:
				return append([]byte(nil), resp.Body()...), nil
			case status == fasthttp.StatusTooManyRequests || status >= 500:
				lastErr = fmt.Errorf("lichess api error: status=%d", status)
			default:
				return nil, fmt.Errorf("lichess api error: status=%d", status)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// convertLichessGame replays the SAN move text to produce per-ply UCI and FEN.
func convertLichessGame(username string, lg lichessGame) (domain.GameRecord, error) {
	color := domain.White
	if strings.EqualFold(lg.Players.Black.User.Name, username) {
		color = domain.Black
	}

	rec := domain.GameRecord{
		Ref:          lg.ID,
		SubjectColor: color,
		TimeControl:  lg.Speed,
		OpeningECO:   lg.Opening.ECO,
		PlayedAt:     time.UnixMilli(lg.CreatedAt),
	}

	g := nchess.NewGame()
	for i, san := range strings.Fields(lg.Moves) {
		pos := g.Position()
		mv, err := nchess.AlgebraicNotation{}.Decode(pos, san)
		if err != nil {
			return domain.GameRecord{}, fmt.Errorf("decode san %q at ply %d: %w", san, i, err)
		}
		uci := nchess.UCINotation{}.Encode(pos, mv)
		if err := g.Move(mv, nil); err != nil {
			return domain.GameRecord{}, fmt.Errorf("apply san %q at ply %d: %w", san, i, err)
		}
		side := domain.White
		if i%2 == 1 {
			side = domain.Black
		}
		rec.Moves = append(rec.Moves, domain.GameMoveRecord{
			Ply:      i,
			Side:     side,
			UCI:      uci,
			SAN:      san,
			FENAfter: g.FEN(),
		})
	}
	if len(rec.Moves) == 0 {
		return domain.GameRecord{}, fmt.Errorf("game %s has no moves", lg.ID)
	}
	return rec, nil
}
