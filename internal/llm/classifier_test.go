package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/medsage/medsage-api/internal/domain"
)

func TestClassifyParsesCategoryNumber(t *testing.T) {
	cases := []struct {
		reply string
		want  domain.RouteCategory
	}{
		{"1", domain.RouteClinicalTrials},
		{"2.", domain.RouteDrug},
		{"3", domain.RoutePubmedWeb},
		{" Category 2 ", domain.RouteDrug},
		{"The answer is 3 because it is general.", domain.RoutePubmedWeb},
	}

	for _, tc := range cases {
		c := NewRouteClassifier(&fakeClient{reply: tc.reply}, domain.RoutePubmedWeb)
		if got := c.Classify(context.Background(), "q"); got != tc.want {
			t.Errorf("reply %q: expected %v, got %v", tc.reply, tc.want, got)
		}
	}
}

func TestClassifyFallsBackOnError(t *testing.T) {
	c := NewRouteClassifier(&fakeClient{err: errors.New("timeout")}, domain.RoutePubmedWeb)
	if got := c.Classify(context.Background(), "q"); got != domain.RoutePubmedWeb {
		t.Errorf("expected fallback route, got %v", got)
	}
}

func TestClassifyFallsBackOnGarbage(t *testing.T) {
	for _, reply := range []string{"", "none of these", "7", "0"} {
		c := NewRouteClassifier(&fakeClient{reply: reply}, domain.RoutePubmedWeb)
		if got := c.Classify(context.Background(), "q"); got != domain.RoutePubmedWeb {
			t.Errorf("reply %q: expected fallback route, got %v", reply, got)
		}
	}
}

func TestRouteSurfacesFailures(t *testing.T) {
	// Route reports failures instead of absorbing them, so callers can tell
	// a real classification from a fallback.
	c := NewRouteClassifier(&fakeClient{err: errors.New("timeout")}, domain.RoutePubmedWeb)
	if _, err := c.Route(context.Background(), "q"); err == nil {
		t.Error("expected an error from a failed model call")
	}

	c = NewRouteClassifier(&fakeClient{reply: "none of these"}, domain.RoutePubmedWeb)
	if _, err := c.Route(context.Background(), "q"); err == nil {
		t.Error("expected an error from an unparseable reply")
	}

	c = NewRouteClassifier(&fakeClient{reply: "2"}, domain.RoutePubmedWeb)
	route, err := c.Route(context.Background(), "q")
	if err != nil || route != domain.RouteDrug {
		t.Errorf("expected drug route, got %v, %v", route, err)
	}
}
