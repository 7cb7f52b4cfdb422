// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/dispatch/dispatch/stream"
	"github.com/hashicorp/dispatch/dispatch/structs"
)

const (
	// heartbeatInterval keeps intermediaries from closing an idle stream.
	heartbeatInterval = 10 * time.Second
)

// EventStream serves the event log as newline-delimited JSON. The stream
// starts at ?index= (zero means "from now"), filtered by ?topic= pairs of
// the form Topic:key and by ?channel= values.
func (s *HTTPServer) EventStream(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, CodedError(http.StatusMethodNotAllowed, ErrInvalidMethod)
	}

	query := req.URL.Query()

	indexStr := query.Get("index")
	if indexStr == "" {
		indexStr = "0"
	}
	index, err := strconv.ParseUint(indexStr, 10, 64)
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, fmt.Sprintf("Unable to parse index: %v", err))
	}

	topics, err := parseEventTopics(query)
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, fmt.Sprintf("Invalid topic query: %v", err))
	}

	flusher, ok := resp.(http.Flusher)
	if !ok {
		return nil, CodedError(http.StatusInternalServerError, "streaming not supported")
	}

	sub, err := s.agent.server.Broker().Subscribe(&stream.SubscribeRequest{
		Index:    index,
		Topics:   topics,
		Channels: query["channel"],
	})
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err.Error())
	}
	defer sub.Unsubscribe()

	resp.Header().Set("Content-Type", "application/json")
	resp.Header().Set("Cache-Control", "no-cache")

	ctx := req.Context()
	errs, errCtx := errgroup.WithContext(ctx)
	jsonStream := stream.NewJsonStream(errCtx, heartbeatInterval)
	errs.Go(func() error {
		for {
			events, err := sub.Next(errCtx)
			switch {
			case errors.Is(err, stream.ErrSubscriptionClosed):
				return CodedError(http.StatusInternalServerError, err.Error())
			case errCtx.Err() != nil:
				return nil
			case err != nil:
				return CodedError(http.StatusInternalServerError, err.Error())
			}

			if len(events.Events) == 0 {
				continue
			}
			if err := jsonStream.Send(events); err != nil {
				return CodedError(http.StatusInternalServerError, err.Error())
			}
		}
	})
	errs.Go(func() error {
		for {
			select {
			case <-errCtx.Done():
				return nil
			case frame := <-jsonStream.OutCh():
				if _, err := resp.Write(frame.Data); err != nil {
					return err
				}
				// Each entry is its own line per ndjson.org.
				if _, err := resp.Write([]byte("\n")); err != nil {
					return err
				}
				flusher.Flush()
			}
		}
	})

	codedErr := errs.Wait()
	if codedErr != nil && ctx.Err() != nil {
		// client went away
		codedErr = nil
	}
	return nil, codedErr
}

func parseEventTopics(query url.Values) (map[structs.Topic][]string, error) {
	raw, ok := query["topic"]
	if !ok {
		return allTopics(), nil
	}
	topics := make(map[structs.Topic][]string)

	for _, topic := range raw {
		k, v, err := parseTopic(topic)
		if err != nil {
			return nil, fmt.Errorf("error parsing topics: %w", err)
		}

		topics[structs.Topic(k)] = append(topics[structs.Topic(k)], v)
	}
	return topics, nil
}

func parseTopic(topic string) (string, string, error) {
	parts := strings.Split(topic, ":")
	// infer wildcard if only given a topic
	if len(parts) == 1 {
		return topic, "*", nil
	} else if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid key value pair for topic: %s", topic)
	}
	return parts[0], parts[1], nil
}

func allTopics() map[structs.Topic][]string {
	return map[structs.Topic][]string{structs.TopicAll: {"*"}}
}
