/*
Package perimeter manages the network isolation groups a cluster runs in.

Every cluster uses five groups named from its prefix, one per role. Ensure
creates whichever are missing and, when it created any, authorizes SSH from
anywhere on each group followed by full mutual trust between every ordered
pair of groups. Rules that already exist count as authorized, so Ensure is
idempotent and cheap against an existing perimeter.

Throttling and transport failures are retried. Anything else, a
provider-internal error included, aborts with ErrPerimeterBootstrap.
*/
package perimeter
