package workers

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"play-tracking-system/models"
	"play-tracking-system/services"
	"play-tracking-system/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// BGGSyncClient imports plays logged on BoardGameGeek for every local user
// with a linked BGG account. Imported plays carry the BGG play id, which the
// dedup engine uses as a tie-break key; when two members of the same group
// both logged (or imported) the same session, the engine flags the duplicate.
//
// BGG throttles its XML API aggressively, so requests are spaced out by
// RequestDelay rather than fired per user in parallel.
type BGGSyncClient struct {
	BaseURL      string
	HTTPClient   *http.Client
	DB           *gorm.DB
	Dedup        *services.DedupService
	RequestDelay time.Duration
	Lookback     time.Duration // how far back each fetch reaches
}

func NewBGGSyncClient(db *gorm.DB, dedup *services.DedupService) *BGGSyncClient {
	baseURL := os.Getenv("BGG_API_URL")
	if baseURL == "" {
		baseURL = "https://boardgamegeek.com/xmlapi2"
	}

	return &BGGSyncClient{
		BaseURL:      baseURL,
		DB:           db,
		Dedup:        dedup,
		HTTPClient:   utils.HTTPClient,
		RequestDelay: 2 * time.Second,
		Lookback:     30 * 24 * time.Hour,
	}
}

// bggPlaysResponse mirrors the /plays XML payload.
type bggPlaysResponse struct {
	XMLName xml.Name  `xml:"plays"`
	Total   int       `xml:"total,attr"`
	Plays   []bggPlay `xml:"play"`
}

type bggPlay struct {
	ID     int64  `xml:"id,attr"`
	Date   string `xml:"date,attr"` // YYYY-MM-DD
	Length int    `xml:"length,attr"`
	Item   struct {
		ObjectID int64  `xml:"objectid,attr"`
		Name     string `xml:"name,attr"`
	} `xml:"item"`
	Comments string      `xml:"comments"`
	Players  []bggPlayer `xml:"players>player"`
}

type bggPlayer struct {
	Username string `xml:"username,attr"`
	Name     string `xml:"name,attr"`
	Score    string `xml:"score,attr"`
	Win      int    `xml:"win,attr"`
}

// PollBGGPlays runs the import loop until ctx is canceled.
func PollBGGPlays(ctx context.Context, client *BGGSyncClient, interval time.Duration) {
	log.Println("🔁 Starting BGG play import worker…")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.SyncLinkedUsers(ctx); err != nil {
				log.Printf("[BGG_SYNC] ❌ import cycle failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ BGG play import worker stopped")
			return
		}
	}
}

// SyncLinkedUsers imports recent BGG plays for every user with a linked
// account, spacing requests to respect BGG's rate limits.
func (c *BGGSyncClient) SyncLinkedUsers(ctx context.Context) error {
	var users []models.GroupUser
	if err := c.DB.Where("bgg_username IS NOT NULL AND bgg_username <> ''").Find(&users).Error; err != nil {
		return fmt.Errorf("failed to load linked users: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	var imported, failed int
	for i, user := range users {
		if i > 0 {
			select {
			case <-time.After(c.RequestDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		plays, err := c.FetchUserPlays(ctx, *user.BGGUsername, time.Now().Add(-c.Lookback))
		if err != nil {
			failed++
			log.Printf("[BGG_SYNC] ⚠️ fetch for %s failed: %v", *user.BGGUsername, err)
			continue
		}
		n, err := c.importUserPlays(user, plays)
		if err != nil {
			failed++
			log.Printf("[BGG_SYNC] ⚠️ import for %s failed: %v", *user.BGGUsername, err)
			continue
		}
		imported += n
	}

	log.Printf("[BGG_SYNC] ✅ cycle done: %d user(s), %d play(s) imported, %d failure(s)",
		len(users), imported, failed)
	return nil
}

// FetchUserPlays calls GET {base}/plays?username=X&mindate=YYYY-MM-DD.
func (c *BGGSyncClient) FetchUserPlays(ctx context.Context, username string, since time.Time) ([]bggPlay, error) {
	u, err := url.Parse(fmt.Sprintf("%s/plays", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse BGG base URL: %w", err)
	}
	q := u.Query()
	q.Set("username", username)
	q.Set("mindate", since.UTC().Format("2006-01-02"))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call BGG: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("BGG returned status %d: %s", resp.StatusCode, string(body))
	}

	var response bggPlaysResponse
	if err := xml.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode BGG plays XML: %w", err)
	}
	return response.Plays, nil
}

// importUserPlays stores fetched plays that are not known yet and hands each
// new one to the dedup engine. Imported plays attach to the user's oldest
// group membership; users without a group import group-less plays, which the
// engine skips.
func (c *BGGSyncClient) importUserPlays(user models.GroupUser, plays []bggPlay) (int, error) {
	groupID, err := c.primaryGroup(user.ExternalUserID)
	if err != nil {
		return 0, err
	}

	var created int
	for _, remote := range plays {
		var count int64
		if err := c.DB.Model(&models.Play{}).Where("bgg_play_id = ?", remote.ID).Count(&count).Error; err != nil {
			return created, err
		}
		if count > 0 {
			continue
		}

		playedOn, err := time.Parse("2006-01-02", remote.Date)
		if err != nil {
			log.Printf("[BGG_SYNC] ⚠️ skipping BGG play %d: bad date %q", remote.ID, remote.Date)
			continue
		}

		game, err := c.resolveGame(remote.Item.ObjectID, remote.Item.Name)
		if err != nil {
			return created, err
		}

		bggID := remote.ID
		play := models.Play{
			GameID:    game.ID,
			GroupID:   groupID,
			CreatorID: user.ExternalUserID,
			PlayedOn:  playedOn.UTC(),
			BGGPlayID: &bggID,
			Comment:   remote.Comments,
		}
		if remote.Length > 0 {
			length := remote.Length
			play.LengthMinutes = &length
		}

		err = c.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&play).Error; err != nil {
				return err
			}
			participants := c.buildParticipants(tx, play.ID, remote.Players)
			if len(participants) > 0 {
				return tx.Create(&participants).Error
			}
			return nil
		})
		if err != nil {
			return created, fmt.Errorf("failed to store BGG play %d: %w", remote.ID, err)
		}
		created++

		if err := c.Dedup.SyncForPlay(play.ID); err != nil {
			log.Printf("[BGG_SYNC] ⚠️ dedup sync for imported play %d failed: %v", play.ID, err)
		}
	}
	return created, nil
}

// primaryGroup returns the user's oldest group membership, or nil when the
// user belongs to no group.
func (c *BGGSyncClient) primaryGroup(externalUserID string) (*uint, error) {
	var member models.GroupMember
	err := c.DB.Where("user_id = ?", externalUserID).Order("joined_at ASC, id ASC").First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member.GroupID, nil
}

// resolveGame finds the catalog entry for a BGG game id, creating it on first
// sight.
func (c *BGGSyncClient) resolveGame(bggGameID int64, name string) (*models.Game, error) {
	var game models.Game
	err := c.DB.First(&game, "bgg_game_id = ?", bggGameID).Error
	if err == nil {
		return &game, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	game = models.Game{
		Name:      name,
		Slug:      slug.Make(fmt.Sprintf("%s-bgg-%d", name, bggGameID)),
		BGGGameID: &bggGameID,
	}
	if err := c.DB.Create(&game).Error; err != nil {
		return nil, fmt.Errorf("failed to create catalog entry for BGG game %d: %w", bggGameID, err)
	}
	return &game, nil
}

// buildParticipants maps BGG players to participant rows. A BGG username that
// belongs to a locally linked user becomes a registered-user participant; an
// unlinked username stays a BGG-username participant; players with no
// username become guests.
func (c *BGGSyncClient) buildParticipants(tx *gorm.DB, playID uint, players []bggPlayer) []models.PlayParticipant {
	participants := make([]models.PlayParticipant, 0, len(players))
	for _, p := range players {
		participant := models.PlayParticipant{
			ID:     uuid.NewString(),
			PlayID: playID,
			Winner: p.Win == 1,
		}
		if score, err := strconv.ParseFloat(p.Score, 64); err == nil {
			participant.Score = &score
		}

		switch {
		case p.Username != "":
			var local models.GroupUser
			if err := tx.First(&local, "bgg_username = ?", p.Username).Error; err == nil {
				participant.UserID = &local.ExternalUserID
			} else {
				username := p.Username
				participant.BGGUsername = &username
			}
		case p.Name != "":
			name := p.Name
			participant.GuestName = &name
		default:
			continue // nameless player rows carry no identity worth keeping
		}
		participants = append(participants, participant)
	}
	return participants
}
