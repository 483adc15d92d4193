package e2e

import (
	"context"
	"fmt"
	"guide-chat/domain"
	"guide-chat/runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseEngineSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestDeepLinkSendFlow() {
	if s.Config.DeepLink == "" {
		s.T().Skip("E2E_DEEP_LINK is required")
	}

	s.WithEngine("Resolve deep link and send", func(ctx context.Context, engine *runtime.Engine) {
		var conversation domain.Conversation

		s.Run("Step 1: the directory baseline is ordered by activity", func() {
			conversations := engine.Directory().Conversations()
			for i := 1; i < len(conversations); i++ {
				s.Require().False(conversations[i].UpdatedAt.After(conversations[i-1].UpdatedAt))
			}
		})

		s.Run("Step 2: resolving twice gives the same conversation", func() {
			first, err := engine.OpenDeepLink(ctx, s.Config.DeepLink)
			s.Require().NoError(err)
			second, err := engine.OpenDeepLink(ctx, s.Config.DeepLink)
			s.Require().NoError(err)
			s.Require().Equal(first.ID, second.ID)
			s.Require().Equal(first.ID, engine.Thread().Active())
			conversation = first
		})

		s.Run("Step 3: a sent message is confirmed once", func() {
			if !s.Config.Send {
				s.T().Skip("E2E_SEND is disabled")
			}
			content := fmt.Sprintf("e2e ping %s", time.Now().Format(time.RFC3339))
			delivery, err := engine.Send(ctx, content, nil)
			s.Require().NoError(err)
			saved, err := delivery.Wait(ctx)
			s.Require().NoError(err)
			s.Require().False(saved.ID.IsTemporary())

			s.Require().Eventually(func() bool {
				c, ok := engine.Directory().Find(conversation.ID)
				return ok && c.LastMessage == content
			}, 10*time.Second, 100*time.Millisecond)

			count := 0
			for _, m := range engine.Thread().Messages() {
				if m.ClientID == saved.ClientID {
					count++
				}
			}
			s.Require().Equal(1, count)
		})
	})
}
