package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"horse.fit/newsfeed/internal/feed"
)

const atomContentType = "application/atom+xml; charset=utf-8"

func (s *Server) handleFeedAtom(c echo.Context) error {
	result, written, err := s.rankFeed(c)
	if written {
		return err
	}

	selfURL := c.Scheme() + "://" + c.Request().Host + c.Request().URL.Path
	atom, err := renderAtom(result, selfURL)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", result.UserID).Msg("render atom feed failed")
		return internalError(c, "Failed to render feed")
	}
	return c.Blob(http.StatusOK, atomContentType, []byte(atom))
}

// renderAtom turns a ranked feed into an Atom document, one entry per cluster
// in rank order.
func renderAtom(result feed.Result, selfURL string) (string, error) {
	out := &feeds.Feed{
		Title:       fmt.Sprintf("Personalized news for %s", result.UserID),
		Link:        &feeds.Link{Href: selfURL, Rel: "self"},
		Description: "Story clusters ranked for this reader",
		Id:          selfURL,
		Created:     result.GeneratedAt,
		Updated:     result.GeneratedAt,
	}

	for _, item := range result.Items {
		cluster := item.Cluster
		link := cluster.RepresentativeURL
		if link == "" {
			link = selfURL + "#" + cluster.ID
		}
		out.Items = append(out.Items, &feeds.Item{
			Id:          "urn:uuid:" + cluster.ID,
			Title:       cluster.Title,
			Link:        &feeds.Link{Href: link},
			Description: cluster.Description,
			Created:     cluster.CreatedAt,
			Updated:     cluster.UpdatedAt,
		})
	}

	atom, err := out.ToAtom()
	if err != nil {
		return "", fmt.Errorf("encode atom feed user_id=%s: %w", result.UserID, err)
	}
	return atom, nil
}
