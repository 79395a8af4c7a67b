package main

import (
	"context"
	"fmt"
	"os"

	"github.com/delaneyj/statesync/config"
	"github.com/delaneyj/statesync/kv"
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/registry"
	"github.com/delaneyj/statesync/storage"
	"github.com/urfave/cli/v3"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Link app properties to the configured stores and dump the registry",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, stop, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			return runDemo(cfg)
		},
	}
}

func runDemo(cfg config.Config) error {
	app, err := storage.CreateApp(storage.WithProp("say", "Hello"))
	if err != nil {
		return err
	}
	defer storage.ResetApp()

	store, err := kv.Open(cfg.Store)
	if err != nil {
		return err
	}
	persistent := storage.NewPersistent(app, store)
	if err := storage.Persist(persistent, "say", "Hello"); err != nil {
		return err
	}

	link1, err := storage.Link[string](app, "say", nil, "link1")
	if err != nil {
		return err
	}
	defer link1.AboutToBeDeleted()
	link2, err := storage.Link[string](app, "say", nil, "link2")
	if err != nil {
		return err
	}
	defer link2.AboutToBeDeleted()

	link1.Set("Anton")
	data, err := store.Get("say")
	if err != nil {
		return err
	}
	fmt.Printf("link2: %s, stored: %s\n", link2.Get(), data)

	sessionStore, err := kv.Open(cfg.Distributed.Store)
	if err != nil {
		return err
	}
	distributed := storage.NewDistributed(app, sessionStore, cfg.Distributed.SessionID, func(status string) {
		fmt.Printf("session: %s\n", status)
	})
	defer distributed.AboutToBeDeleted()

	todo := []string{"buy milk"}
	list, err := observed.WrapArray(&todo, nil)
	if err != nil {
		return err
	}
	if err := storage.Distribute(distributed, "todo", list); err != nil {
		return err
	}
	distributed.OnConnected("connected")
	list.Push("ship it")
	shared, err := sessionStore.Get(distributed.SessionID() + "/todo")
	if err != nil {
		return err
	}
	fmt.Printf("session %s todo: %s\n", distributed.SessionID(), shared)

	registry.Dump(os.Stdout)
	return nil
}
