/*
Package remote runs commands on cluster hosts and copies files to them.

A Channel has two primitives, Execute and CopyFile. Execute returns a Session:
a lazy, finite, non-restartable sequence of output chunks followed by an exit
status. Consumers range over it and then call Wait:

	sess, err := ch.Execute(ctx, host, "uptime")
	if err != nil {
		return err
	}
	for chunk := range sess.All() {
		fmt.Print(string(chunk.Data))
	}
	code, err := sess.Wait()

Run wraps that loop for the common case and takes a Consumer (Discard,
Summarize, Echo, Collect) so bootstrap output is handled the same way whether
it is summarized as progress dots or echoed into the log.

IsNotReady classifies the failures a host produces while it is still booting
(authentication failure, refused or reset connection, timeout, TLS errors).
The readiness gate retries those and treats anything else as fatal.

SSHChannel is the production implementation over golang.org/x/crypto/ssh.
DryRun accepts everything and pairs with the in-memory provider.
*/
package remote
