package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/ghost-admin-tools/internal/config"
	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
)

// apiArgs accepts the optional positional URL and Admin API key.
var apiArgs = cobra.MaximumNArgs(2)

// apiSession returns the resolved session with positional arguments
// applied and validated for API access.
func (o *globalOptions) apiSession(args []string) (config.Session, error) {
	s := o.session
	if len(args) > 0 {
		s.URL = args[0]
	}
	if len(args) > 1 {
		s.AdminKey = args[1]
	}
	if err := s.Validate(); err != nil {
		return config.Session{}, err
	}
	return s, nil
}

// dial creates the Admin API client for an API command. The returned
// function releases the client and its redis connection.
func (o *globalOptions) dial(args []string) (*pipeline, func(), error) {
	s, err := o.apiSession(args)
	if err != nil {
		return nil, nil, err
	}

	rdb, err := s.RedisClient()
	if err != nil {
		return nil, nil, toolerrors.WrapUsage(err, "invalid --"+config.FlagRedisURL)
	}

	api, err := client.New(s.ClientConfig(rdb))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, toolerrors.WrapUsage(err, "create client")
	}

	closeFn := func() {
		api.Close()
		if rdb != nil {
			rdb.Close()
		}
	}
	return newPipeline(api, s, o.logger), closeFn, nil
}

// local returns a pipeline for commands that never touch the API.
func (o *globalOptions) local() *pipeline {
	return newPipeline(nil, o.session, o.logger)
}
