/*
Package cdns implements a chained-authority DNS server core. A zone is served
by an ordered sequence of stores, each implementing the Authority interface,
and a query walks the sequence until one store answers it. Stores signal a
miss with ErrNotHandled, which is not an error but the fallthrough contract
between chain members.

Stores

Five store variants can be placed in a chain: file-backed zones, bbolt-backed
zones with dynamic update support, forwarders, recursors, and blocklists. A
blocklist store matches query names against list files, by exact name or by
wildcard suffix, and sinkholes anything that matches with a synthetic null
address answer. Because chain evaluation is strictly first-match-wins, a
blocklist placed at the head of a chain deterministically prevents the
network-bound stores behind it from ever seeing a blocked query.

Zones and listeners

A ZoneSet groups chains by zone origin and routes each query into the most
specific zone. Listeners accept queries over plain DNS on UDP or TCP and
reply based on the chain outcome.
*/
package cdns
