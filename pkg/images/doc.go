/*
Package images resolves per-role image labels to provider image ids.

Resolution order is: an explicit image id override, then the label among the
account's own images, then the label among every image visible to the account.
The last pass is slow on real providers, so results are kept in a
golang-lru cache owned by the Resolver. Each cluster gets its own Resolver.

A label that resolves nowhere yields ErrImageNotFound, naming the role and
label, before any node is launched.
*/
package images
