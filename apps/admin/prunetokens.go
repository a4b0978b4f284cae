package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) pruneTokens() error {
	n, err := cli.usrSvc.PruneExpiredTokens(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d expired token(s)\n", n)
	return nil
}
